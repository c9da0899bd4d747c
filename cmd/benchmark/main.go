// Benchmark tool for replaying labelled card transactions against fraudscore.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labelled.csv -url http://localhost:8080
//
// The CSV needs a header with the eight request columns (amount,
// transaction_hour, merchant_category, foreign_transaction, location_mismatch,
// device_trust_score, velocity_last_24h, cardholder_age) and an is_fraud label.
//
// This tool:
//  1. Reads the labelled transactions
//  2. Sends each one to POST /api/predict
//  3. Compares the predicted is_fraud with the label
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// requestColumns are the CSV columns forwarded as request fields, in wire order.
var requestColumns = []string{
	"amount",
	"transaction_hour",
	"merchant_category",
	"foreign_transaction",
	"location_mismatch",
	"device_trust_score",
	"velocity_last_24h",
	"cardholder_age",
}

// LabelledTransaction is one CSV row.
type LabelledTransaction struct {
	Row     int
	Request map[string]any
	IsFraud bool
}

// PredictResponse is the subset of the scoring response the benchmark reads.
type PredictResponse struct {
	IsFraud          bool    `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`
	RiskLevel        string  `json:"risk_level"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud predicted as fraud
	FalsePositives int64 // Legitimate predicted as fraud
	TrueNegatives  int64 // Legitimate predicted as legitimate
	FalseNegatives int64 // Fraud predicted as legitimate (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	RiskLevels sync.Map // risk level -> *atomic.Int64

	ProcessingTimeMs int64
}

// Record adds one prediction to the confusion matrix.
func (m *Metrics) Record(actual bool, res *PredictResponse) {
	if actual {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}

	switch predicted := res.IsFraud; {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}

	counter, _ := m.RiskLevels.LoadOrStore(res.RiskLevel, new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)
}

// Scores returns precision, recall, F1 and accuracy.
func (m *Metrics) Scores() (precision, recall, f1, accuracy float64) {
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return precision, recall, f1, accuracy
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "fraudscore base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labelled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          FRAUDSCORE BENCHMARK - Labelled Card Data            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Server URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Println()

	if err := checkReady(*baseURL); err != nil {
		fmt.Printf("ERROR: fraudscore not ready at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure fraudscore is running with a model loaded:")
		fmt.Println("  go run ./cmd/fraudscore")
		os.Exit(1)
	}
	fmt.Println("✓ fraudscore is ready")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readLabelledCSV(f, *limit, *fraudOnly)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: no transactions to replay")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkReady(baseURL string) error {
	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}

// readLabelledCSV parses rows into request payloads. Numeric columns are
// forwarded as JSON numbers, merchant_category as a string.
func readLabelledCSV(r io.Reader, limit int, fraudOnly bool) ([]LabelledTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range append(requestColumns, "is_fraud") {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var transactions []LabelledTransaction
	row := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		label := strings.TrimSpace(record[colIndex["is_fraud"]])
		isFraud := label == "1" || strings.EqualFold(label, "true")
		if fraudOnly && !isFraud {
			continue
		}

		req := make(map[string]any, len(requestColumns))
		valid := true
		for _, col := range requestColumns {
			raw := strings.TrimSpace(record[colIndex[col]])
			if col == "merchant_category" {
				req[col] = raw
				continue
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				valid = false
				break
			}
			req[col] = n
		}
		if !valid {
			continue
		}

		transactions = append(transactions, LabelledTransaction{Row: row, Request: req, IsFraud: isFraud})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []LabelledTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabelledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := predict(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: row %d -> %v\n", tx.Row, err)
					}
					continue
				}

				metrics.Record(tx.IsFraud, result)

				if verbose {
					status := "✓"
					if result.IsFraud != tx.IsFraud {
						status = "✗"
					}
					fmt.Printf("%s row %-6d | Amount: %10v | Category: %-14s | Fraud: %-5v | Predicted: %-6s (%.4f)\n",
						status,
						tx.Row,
						tx.Request["amount"],
						tx.Request["merchant_category"],
						tx.IsFraud,
						result.RiskLevel,
						result.FraudProbability,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func predict(client *http.Client, baseURL string, tx LabelledTransaction) (*PredictResponse, error) {
	body, err := json.Marshal(tx.Request)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/api/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD       LEGIT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision, recall, f1, accuracy := m.Scores()

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of fraud calls, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🚦 RISK LEVELS\n")
	for _, level := range []string{"LOW", "MEDIUM", "HIGH"} {
		var n int64
		if v, ok := m.RiskLevels.Load(level); ok {
			n = v.(*atomic.Int64).Load()
		}
		fmt.Printf("   %-7s %d\n", level+":", n)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
