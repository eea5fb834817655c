package otp

import (
	"regexp"
	"strings"
)

// CodeLength is the number of input slots: one letter then six digits.
const CodeLength = 7

var codePattern = regexp.MustCompile(`^[A-Z][0-9]{6}$`)

// ValidCode reports whether s has the shape of a verification code.
func ValidCode(s string) bool {
	return len(s) == CodeLength && codePattern.MatchString(s)
}

// AcceptsAt reports whether r may be entered at slot i.
func AcceptsAt(i int, r rune) bool {
	switch {
	case i == 0:
		return r >= 'A' && r <= 'Z'
	case i > 0 && i < CodeLength:
		return r >= '0' && r <= '9'
	}
	return false
}

// Code holds the seven slots of a code being typed. The zero rune marks an
// empty slot. Slots only ever hold characters their position accepts.
type Code [CodeLength]rune

// Set stores r at slot i if the slot accepts it.
func (c *Code) Set(i int, r rune) bool {
	if !AcceptsAt(i, r) {
		return false
	}
	c[i] = r
	return true
}

func (c *Code) Clear(i int) {
	if i >= 0 && i < CodeLength {
		c[i] = 0
	}
}

func (c *Code) Reset() {
	*c = Code{}
}

func (c Code) Empty(i int) bool {
	return i < 0 || i >= CodeLength || c[i] == 0
}

// Slot returns the character at i, or "" when empty.
func (c Code) Slot(i int) string {
	if c.Empty(i) {
		return ""
	}
	return string(c[i])
}

func (c Code) Slots() []string {
	slots := make([]string, CodeLength)
	for i := range c {
		slots[i] = c.Slot(i)
	}
	return slots
}

// Filled counts the non-empty slots.
func (c Code) Filled() int {
	n := 0
	for _, r := range c {
		if r != 0 {
			n++
		}
	}
	return n
}

func (c Code) Complete() bool {
	return c.Filled() == CodeLength
}

// FirstEmpty returns the first empty slot, or the last slot when complete.
func (c Code) FirstEmpty() int {
	for i, r := range c {
		if r == 0 {
			return i
		}
	}
	return CodeLength - 1
}

// String joins the filled slots in order.
func (c Code) String() string {
	var b strings.Builder
	for _, r := range c {
		if r != 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Paste replaces the code with pasted text. The text is upper-cased, stripped
// to [A-Z0-9] and cut to seven characters, then laid out slot by slot with the
// same class rules as typing. A digit arriving at the letter slot leaves that
// slot empty and lands in the first digit slot; a letter arriving at a digit
// slot is dropped.
func (c *Code) Paste(text string) {
	c.Reset()
	cleaned := make([]rune, 0, CodeLength)
	for _, r := range strings.ToUpper(text) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
			if len(cleaned) == CodeLength {
				break
			}
		}
	}

	slot := 0
	for _, r := range cleaned {
		if slot >= CodeLength {
			break
		}
		if slot == 0 && !AcceptsAt(0, r) && AcceptsAt(1, r) {
			slot = 1
		}
		if c.Set(slot, r) {
			slot++
		}
	}
}
