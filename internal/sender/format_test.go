package sender

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"kufar_bot/internal/model"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "national mobile number",
			in:   "375291234567",
			want: "+375 (29) 123-45-67",
		},
		{
			name: "another operator code",
			in:   "375447654321",
			want: "+375 (44) 765-43-21",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   " 375251112233 ",
			want: "+375 (25) 111-22-33",
		},
		{
			name: "unmatched number passes through",
			in:   "80291234567",
			want: "80291234567",
		},
		{
			name: "unknown operator code passes through",
			in:   "375991234567",
			want: "375991234567",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPhone(tt.in); got != tt.want {
				t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{12345, "123.45"},
		{2500000, "25000.00"},
		{99, "0.99"},
		{0, "0.00"},
	}

	for _, tt := range tests {
		if got := FormatPrice(tt.minor); got != tt.want {
			t.Errorf("FormatPrice(%d) = %q, want %q", tt.minor, got, tt.want)
		}
	}
}

func TestFormatListing(t *testing.T) {
	tests := []struct {
		name    string
		listing model.Listing
		want    string
	}{
		{
			name: "full listing",
			listing: model.Listing{
				Subject:     "Сдается квартира",
				PriceBYN:    98700,
				PriceUSD:    38500,
				Rooms:       "2",
				ListTime:    time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC),
				ContactName: "Анна",
				Phone:       "375291234567",
			},
			want: "<b>Сдается квартира</b>\n\n" +
				"💵 $385.00, или 987.00 руб.\n" +
				"🚪 Комнаты: 2\n" +
				"🌟 8/29/2026, 10:15:00 AM\n" +
				"\n" +
				"👤 Анна\n" +
				"📱 +375 (29) 123-45-67\n",
		},
		{
			name: "agent without phone or name",
			listing: model.Listing{
				Subject:   "Офис в центре",
				PriceBYN:  2500000,
				PriceUSD:  1000000,
				CompanyAd: true,
			},
			want: "<b>Офис в центре</b>\n\n" +
				"💵 $10000.00, или 25000.00 руб.\n" +
				"\n" +
				"👤 Без имени ⚠️ Агент\n" +
				"📵 Телефон не указан\n",
		},
		{
			name: "multiple phones split on comma",
			listing: model.Listing{
				PriceBYN: 100,
				PriceUSD: 50,
				Phone:    "375447654321, 80170000000",
			},
			want: "💵 $0.50, или 1.00 руб.\n" +
				"\n" +
				"👤 Без имени\n" +
				"📱 +375 (44) 765-43-21\n" +
				"📱 80170000000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatListing(&tt.listing)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FormatListing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImageURL(t *testing.T) {
	tests := []struct {
		name string
		img  model.Image
		want string
	}{
		{
			name: "yams storage",
			img:  model.Image{ID: "1001abcdef", YamsStorage: true},
			want: "https://yams.kufar.by/api/v1/kufar-ads/images/10/1001abcdef.jpg?rule=gallery",
		},
		{
			name: "legacy gallery cache",
			img:  model.Image{ID: "2042xyz", YamsStorage: false},
			want: "https://cache1.kufar.by/gallery/20/2042xyz.jpg",
		},
		{
			name: "id too short",
			img:  model.Image{ID: "x"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageURL(tt.img); got != tt.want {
				t.Errorf("ImageURL(%+v) = %q, want %q", tt.img, got, tt.want)
			}
		})
	}
}
