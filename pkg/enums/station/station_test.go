package station

import "testing"

func TestForItemType(t *testing.T) {
	tests := []struct {
		itemType string
		want     Station
	}{
		{itemType: "food", want: Stations.Kitchen},
		{itemType: " Food ", want: Stations.Kitchen},
		{itemType: "beverage", want: Stations.Bar},
		{itemType: "", want: Stations.Bar},
		{itemType: "dessert", want: Stations.Bar},
	}

	for _, tt := range tests {
		t.Run(tt.itemType, func(t *testing.T) {
			if got := ForItemType(tt.itemType); got != tt.want {
				t.Errorf("ForItemType(%q) = %v, want %v", tt.itemType, got, tt.want)
			}
		})
	}
}
