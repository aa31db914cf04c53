package domain

import "testing"

func TestKeyProducer(t *testing.T) {
	cases := []struct {
		name string
		key  Key
		want string
	}{
		{"namespace and app", Key{SystemUser: "srv-a", Namespace: "team", AppName: "app"}, "team/app"},
		{"system user only", Key{SystemUser: "srv-a"}, "srv-a"},
		{"app without namespace", Key{SystemUser: "srv-a", AppName: "app"}, "srv-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.key.Producer(); got != tc.want {
				t.Fatalf("Producer() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRecordCancellation(t *testing.T) {
	rec := OrderRecord{OrderID: "B-srv-1", OrdererID: "srv"}
	got := rec.Cancellation()
	if got.OrderID != "B-srv-1" || got.OrdererID != "srv" {
		t.Fatalf("Cancellation() = %+v", got)
	}
}
