package messaging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCombinedNames(t *testing.T) {
	names := []string{"Alice Smith", "Bob Jones", "Carol White", "Dan Brown", "Eve Black"}

	tests := []struct {
		name  string
		names []string
		full  bool
		want  string
	}{
		{"no members", nil, false, ""},
		{"one member", names[:1], false, "Alice Smith"},
		{"three members", names[:3], false, "Alice Smith, Bob Jones, Carol White"},
		{"four members singular", names[:4], false, "Alice Smith, Bob Jones, Carol White and 1 other"},
		{"five members plural", names, false, "Alice Smith, Bob Jones, Carol White and 2 others"},
		{"five members full", names, true, "Alice Smith, Bob Jones, Carol White, Dan Brown, Eve Black"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CombinedNames(tt.names, tt.full))
		})
	}
}

// distinctNames 生成 n 个互不相同、不含分隔符的名字
func distinctNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Member%d Person", i)
	}
	return out
}

func TestProperty_CombinedNames(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("full listing contains each member exactly once, in order", prop.ForAll(
		func(n int) bool {
			names := distinctNames(n)
			got := CombinedNames(names, true)
			if got != CombinedNames(names, true) {
				return false
			}
			if n == 0 {
				return got == ""
			}
			parts := strings.Split(got, ", ")
			if len(parts) != n {
				return false
			}
			for i, p := range parts {
				if p != names[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
	))

	properties.Property("three or fewer members are never truncated", prop.ForAll(
		func(n int) bool {
			names := distinctNames(n)
			return CombinedNames(names, false) == CombinedNames(names, true)
		},
		gen.IntRange(0, ShownNames),
	))

	properties.Property("collapsed listing reports the hidden member count", prop.ForAll(
		func(n int) bool {
			names := distinctNames(n)
			got := CombinedNames(names, false)
			extras := n - ShownNames
			suffix := fmt.Sprintf(" and %d others", extras)
			if extras == 1 {
				suffix = " and 1 other"
			}
			return strings.HasSuffix(got, suffix) &&
				strings.HasPrefix(got, strings.Join(names[:ShownNames], ", "))
		},
		gen.IntRange(ShownNames+1, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
