package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/models"
)

func short(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// formatEntity renders one record version on a single line.
func formatEntity(e *models.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s v=%s clock=%d effective=%s", e.Kind, e.ID, short(e.UUID), e.LogicalClock,
		e.EffectiveDate.Format("2006-01-02 15:04"))
	if e.ParentID != "" {
		fmt.Fprintf(&b, " parent=%s", e.ParentID)
	}

	for _, k := range slices.Sorted(maps.Keys(e.Payload)) {
		fmt.Fprintf(&b, " %s=%v", k, e.Payload[k])
	}

	counts := map[models.Kind]int{}
	for _, c := range e.Children {
		counts[c.Kind]++
	}
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(&b, " +%s×%d", k, counts[k])
	}

	if e.Pending {
		b.WriteString(" [pending]")
	}
	if e.IsDeleted() {
		b.WriteString(" [deleted]")
	}
	return b.String()
}
