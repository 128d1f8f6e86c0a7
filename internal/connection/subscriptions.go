package connection

import (
	"fmt"
	"strings"
	"time"

	"deribit-hedge-bot/internal/instrument"
)

const (
	channelUserOrders = "user.orders.any.any.raw"
	channelUserTrades = "user.trades.any.any.raw"
)

func perpBookChannel(perp string, depth int, interval time.Duration) string {
	return fmt.Sprintf("book.%s.none.%d.%dms", perp, depth, interval.Milliseconds())
}

func perpTradesChannel(perp string) string {
	return "trades." + perp + ".raw"
}

func portfolioChannel(currency string) string {
	return "user.portfolio." + strings.ToLower(currency)
}

// PublicChannels lists the market data channels: raw book and ticker per
// option, then the grouped perpetual book and its trade tape.
func PublicChannels(options []instrument.ID, perp string, depth int, interval time.Duration) []string {
	out := make([]string, 0, 2*len(options)+2)
	for _, id := range options {
		if !id.IsOption() {
			continue
		}
		out = append(out, "book."+id.Name+".raw", "ticker."+id.Name+".raw")
	}
	return append(out, perpBookChannel(perp, depth, interval), perpTradesChannel(perp))
}

func PrivateChannels(currency string) []string {
	return []string{channelUserOrders, portfolioChannel(currency), channelUserTrades}
}

// Batch splits channels into consecutive groups of at most size entries.
func Batch(channels []string, size int) [][]string {
	if size <= 0 {
		size = len(channels)
	}
	var out [][]string
	for start := 0; start < len(channels); start += size {
		end := start + size
		if end > len(channels) {
			end = len(channels)
		}
		out = append(out, channels[start:end:end])
	}
	return out
}
