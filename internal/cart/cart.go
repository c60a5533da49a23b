package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Line is one cart entry. EventTitle and TierName are display snapshots
// denormalized at add time; price and availability are re-validated
// server-side at checkout.
type Line struct {
	EventID    uuid.UUID `json:"event_id"`
	TierID     uuid.UUID `json:"tier_id"`
	EventTitle string    `json:"event_title"`
	TierName   string    `json:"tier_name"`
	UnitPrice  int       `json:"unit_price"` // minor currency units
	Quantity   int       `json:"quantity"`
}

// Cart is an immutable value. Every mutation returns a fresh cart with
// Total and ItemCount recomputed wholesale from the line list, so the
// derived fields can never drift from the lines.
type Cart struct {
	Lines     []Line `json:"lines"`
	Total     int    `json:"total"`
	ItemCount int    `json:"item_count"`
}

// AddItem merges into an existing (event, tier) line or appends a new one.
func (c Cart) AddItem(line Line) Cart {
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	lines := cloneLines(c.Lines)
	merged := false
	for i := range lines {
		if lines[i].EventID == line.EventID && lines[i].TierID == line.TierID {
			lines[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, line)
	}
	return recompute(lines)
}

// UpdateQuantity replaces a line's quantity. A quantity of zero or less
// removes the line.
func (c Cart) UpdateQuantity(eventID, tierID uuid.UUID, qty int) Cart {
	if qty <= 0 {
		return c.RemoveItem(eventID, tierID)
	}
	lines := cloneLines(c.Lines)
	for i := range lines {
		if lines[i].EventID == eventID && lines[i].TierID == tierID {
			lines[i].Quantity = qty
			break
		}
	}
	return recompute(lines)
}

// RemoveItem deletes the matching line; no-op when absent.
func (c Cart) RemoveItem(eventID, tierID uuid.UUID) Cart {
	lines := make([]Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.EventID == eventID && l.TierID == tierID {
			continue
		}
		lines = append(lines, l)
	}
	return recompute(lines)
}

// Clear empties the cart.
func (c Cart) Clear() Cart {
	return Cart{}
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Signature is a stable digest of the cart contents plus the discount
// combination, used to detect a repeated checkout attempt.
func (c Cart) Signature(promoCode string, redeemPoints int) string {
	parts := make([]string, 0, len(c.Lines)+2)
	for _, l := range c.Lines {
		parts = append(parts, fmt.Sprintf("%s:%s:%d:%d", l.EventID, l.TierID, l.UnitPrice, l.Quantity))
	}
	sort.Strings(parts)
	parts = append(parts, "promo="+promoCode, fmt.Sprintf("points=%d", redeemPoints))
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func recompute(lines []Line) Cart {
	c := Cart{Lines: lines}
	for _, l := range lines {
		c.Total += l.UnitPrice * l.Quantity
		c.ItemCount += l.Quantity
	}
	return c
}
