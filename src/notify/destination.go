package notify

import (
	"fmt"
	"strings"
)

// Destination is one delivery target, written as "kind:target", for example
// "telegram:-1001234" or "redis:dao.announcements".
type Destination struct {
	Kind   string
	Target string
}

func (d Destination) String() string {
	return d.Kind + ":" + d.Target
}

// ParseDestination parses a single "kind:target" pair. The target may be
// empty only for kinds that need none, such as stdout.
func ParseDestination(raw string) (Destination, error) {
	kind, target, ok := strings.Cut(strings.TrimSpace(raw), ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	target = strings.TrimSpace(target)
	if !ok || kind == "" {
		return Destination{}, fmt.Errorf("destination %q: want kind:target", raw)
	}
	if target == "" && kind != "stdout" {
		return Destination{}, fmt.Errorf("destination %q: empty target", raw)
	}
	return Destination{Kind: kind, Target: target}, nil
}

// ParseDestinations parses a comma or whitespace separated list, dropping
// duplicates while keeping order.
func ParseDestinations(raw string) ([]Destination, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == ';'
	})
	seen := make(map[Destination]struct{}, len(fields))
	out := make([]Destination, 0, len(fields))
	for _, f := range fields {
		d, err := ParseDestination(f)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
