package main

import (
	"math"
	"strings"
	"sync/atomic"
	"testing"
)

const sampleCSV = `amount,transaction_hour,merchant_category,foreign_transaction,location_mismatch,device_trust_score,velocity_last_24h,cardholder_age,is_fraud
45.50,14,Grocery,0,0,85,2,35,0
1500,3,Electronics,1,1,25,8,22,1
not-a-number,3,Electronics,1,1,25,8,22,1
600,22,Travel,1,0,55,4,30,true
`

func TestReadLabelledCSV(t *testing.T) {
	txs, err := readLabelledCSV(strings.NewReader(sampleCSV), 0, false)
	if err != nil {
		t.Fatalf("readLabelledCSV failed: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 valid rows, got %d", len(txs))
	}

	if txs[0].IsFraud || !txs[1].IsFraud || !txs[2].IsFraud {
		t.Errorf("unexpected labels: %v %v %v", txs[0].IsFraud, txs[1].IsFraud, txs[2].IsFraud)
	}
	if txs[0].Request["merchant_category"] != "Grocery" {
		t.Errorf("expected Grocery, got %v", txs[0].Request["merchant_category"])
	}
	if txs[0].Request["amount"] != 45.5 {
		t.Errorf("expected amount 45.5, got %v", txs[0].Request["amount"])
	}
	if txs[2].Row != 5 {
		t.Errorf("expected row 5, got %d", txs[2].Row)
	}
}

func TestReadLabelledCSVFilters(t *testing.T) {
	txs, err := readLabelledCSV(strings.NewReader(sampleCSV), 1, true)
	if err != nil {
		t.Fatalf("readLabelledCSV failed: %v", err)
	}
	if len(txs) != 1 || !txs[0].IsFraud {
		t.Errorf("expected a single fraud row, got %+v", txs)
	}
}

func TestReadLabelledCSVMissingColumn(t *testing.T) {
	_, err := readLabelledCSV(strings.NewReader("amount,is_fraud\n1,0\n"), 0, false)
	if err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestMetricsScores(t *testing.T) {
	m := &Metrics{}
	m.Record(true, &PredictResponse{IsFraud: true, RiskLevel: "HIGH"})
	m.Record(true, &PredictResponse{IsFraud: false, RiskLevel: "MEDIUM"})
	m.Record(false, &PredictResponse{IsFraud: true, RiskLevel: "HIGH"})
	m.Record(false, &PredictResponse{IsFraud: false, RiskLevel: "LOW"})
	m.Record(false, &PredictResponse{IsFraud: false, RiskLevel: "LOW"})

	if m.TruePositives != 1 || m.FalseNegatives != 1 || m.FalsePositives != 1 || m.TrueNegatives != 2 {
		t.Fatalf("unexpected confusion matrix: %+v", m)
	}

	precision, recall, f1, accuracy := m.Scores()
	if precision != 0.5 || recall != 0.5 || f1 != 0.5 {
		t.Errorf("expected precision, recall and f1 of 0.5, got %v %v %v", precision, recall, f1)
	}
	if math.Abs(accuracy-0.6) > 1e-9 {
		t.Errorf("expected accuracy 0.6, got %v", accuracy)
	}

	v, ok := m.RiskLevels.Load("LOW")
	if !ok {
		t.Fatal("expected LOW counter")
	}
	if n := v.(*atomic.Int64).Load(); n != 2 {
		t.Errorf("expected 2 LOW, got %d", n)
	}
}
