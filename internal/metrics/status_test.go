package metrics

import (
	"reflect"
	"testing"
)

func TestFlattenStatusBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets map[string]int
		want    []StatusBucket
	}{
		{
			name:    "nil buckets",
			buckets: nil,
			want:    nil,
		},
		{
			name:    "empty buckets",
			buckets: map[string]int{},
			want:    nil,
		},
		{
			name:    "single bucket",
			buckets: map[string]int{"200": 10},
			want:    []StatusBucket{{Code: "200", Count: 10}},
		},
		{
			name:    "multiple buckets sorted by count desc",
			buckets: map[string]int{"200": 10, "500": 5, "429": 20},
			want: []StatusBucket{
				{Code: "429", Count: 20},
				{Code: "200", Count: 10},
				{Code: "500", Count: 5},
			},
		},
		{
			name:    "tie breaking by code",
			buckets: map[string]int{"404": 10, "200": 10, NoResponseBucket: 10},
			want: []StatusBucket{
				{Code: "200", Count: 10},
				{Code: "404", Count: 10},
				{Code: NoResponseBucket, Count: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatusBuckets(tt.buckets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusBuckets() = %v, want %v", got, tt.want)
			}
		})
	}
}
