package mission

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a mission ordinal. Missions unlock in ordinal order starting at 1.
type ID int

const (
	Discovery ID = iota + 1
	Naming
	Voice
	Palette
	Launch
)

// All lists every mission type in ordinal order.
var All = []ID{Discovery, Naming, Voice, Palette, Launch}

var keys = map[ID]string{
	Discovery: "discovery",
	Naming:    "naming",
	Voice:     "voice",
	Palette:   "palette",
	Launch:    "launch",
}

// Key returns the stable string identifier used in stored documents.
func (id ID) Key() string {
	if k, ok := keys[id]; ok {
		return k
	}
	return "mission" + strconv.Itoa(int(id))
}

func (id ID) String() string {
	return id.Key()
}

// Valid reports whether id names a known mission type.
func (id ID) Valid() bool {
	_, ok := keys[id]
	return ok
}

// ParseID accepts either an ordinal ("2") or a key ("naming").
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		id := ID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("unknown mission ordinal %d", n)
		}
		return id, nil
	}
	for id, k := range keys {
		if k == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown mission %q", s)
}
