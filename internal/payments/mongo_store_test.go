package payments

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestClaimFilter_ExcludesClaimedAndTerminal(t *testing.T) {
	f := claimFilter("bill-1")
	if f["_id"] != "bill-1" {
		t.Fatalf("unexpected _id filter: %v", f["_id"])
	}
	status, ok := f["status"].(bson.M)
	if !ok {
		t.Fatalf("expected status sub-filter, got %T", f["status"])
	}
	nin, ok := status["$nin"].([]string)
	if !ok {
		t.Fatalf("expected $nin list, got %T", status["$nin"])
	}
	want := map[string]bool{StatusBookingComplete: true, StatusBookingFailed: true, StatusBookingInProgress: true}
	if len(nin) != len(want) {
		t.Fatalf("unexpected $nin %v", nin)
	}
	for _, s := range nin {
		if !want[s] {
			t.Fatalf("unexpected status %q in $nin", s)
		}
	}
}

func TestStatusFilter(t *testing.T) {
	f := statusFilter("bill-1", StatusCreated)
	if f["_id"] != "bill-1" || f["status"] != StatusCreated {
		t.Fatalf("unexpected filter %v", f)
	}
}

func TestPendingPayment_BSONKeyedByBillNo(t *testing.T) {
	raw, err := bson.Marshal(samplePayment("bill-9"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["_id"] != "bill-9" {
		t.Fatalf("expected _id bill-9, got %v", doc["_id"])
	}
	if _, ok := doc["gateway"]; ok {
		t.Fatalf("gateway block must be omitted until confirmation")
	}
}
