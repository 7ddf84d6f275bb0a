package cart

import (
	"fmt"
	"net/url"
	"strings"
)

const greeting = "Merhaba, şu ürünleri satın almak istiyorum:"

// Message renders the itemised order text sent to the seller.
func Message(c Cart) string {
	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\n")
	for i, it := range c {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s (%s) x%d - %s ₺", it.Title, it.Size, it.Quantity, it.LineTotal().String())
	}
	fmt.Fprintf(&b, "\n\nToplam: %s ₺", c.TotalPrice().String())
	return b.String()
}

// WhatsAppLink builds a wa.me deep link carrying msg. Anything but digits is
// stripped from phone.
func WhatsAppLink(phone, msg string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	// wa.me wants %20, not +, for spaces
	text := strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + text
}
