package sender

import (
	"fmt"
	"regexp"
	"strings"

	"kufar_bot/internal/model"
)

// phonePattern matches Belarusian mobile numbers in national wire form.
var phonePattern = regexp.MustCompile(`(375)(29|25|33|44)(\d{3})(\d{2})(\d{2})`)

// FormatPhone rewrites a national mobile number into the international
// hyphenated display form. Numbers not matching the pattern pass through
// unchanged.
func FormatPhone(raw string) string {
	return phonePattern.ReplaceAllString(strings.TrimSpace(raw), "+$1 ($2) $3-$4-$5")
}

// FormatPrice renders integer minor units as a two-decimal value.
func FormatPrice(minor int64) string {
	return fmt.Sprintf("%.2f", float64(minor)/100)
}

// FormatListing renders a listing as an HTML Telegram message.
func FormatListing(l *model.Listing) string {
	var b strings.Builder

	if l.Subject != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", l.Subject)
	}

	fmt.Fprintf(&b, "💵 $%s, или %s руб.\n", FormatPrice(l.PriceUSD), FormatPrice(l.PriceBYN))
	if l.Rooms != "" {
		fmt.Fprintf(&b, "🚪 Комнаты: %s\n", l.Rooms)
	}
	if !l.ListTime.IsZero() {
		fmt.Fprintf(&b, "🌟 %s\n", l.ListTime.Format("1/2/2006, 3:04:05 PM"))
	}
	b.WriteString("\n")

	name := l.ContactName
	if name == "" {
		name = "Без имени"
	}
	fmt.Fprintf(&b, "👤 %s", name)
	if l.CompanyAd {
		b.WriteString(" ⚠️ Агент")
	}
	b.WriteString("\n")

	if l.Phone == "" {
		b.WriteString("📵 Телефон не указан\n")
	} else {
		for _, phone := range strings.Split(l.Phone, ",") {
			fmt.Fprintf(&b, "📱 %s\n", FormatPhone(phone))
		}
	}

	return b.String()
}

// ImageURL derives the public URL of a listing image. The storage flag picks
// between the two kufar image hosts; both key the file by the first two
// characters of the image id.
func ImageURL(img model.Image) string {
	if len(img.ID) < 2 {
		return ""
	}
	prefix := img.ID[:2]
	if img.YamsStorage {
		return fmt.Sprintf("https://yams.kufar.by/api/v1/kufar-ads/images/%s/%s.jpg?rule=gallery", prefix, img.ID)
	}
	return fmt.Sprintf("https://cache1.kufar.by/gallery/%s/%s.jpg", prefix, img.ID)
}
