package sim

import (
	"log"
	"strconv"
	"strings"
	"unicode"
)

// NameMustBeValid panics if the name does not follow the naming convention.
//
// Names are hierarchical, with tokens separated by dots ("Pico.PIO[0].SM[2]").
// Every token must be non-empty, start with a capital letter and may carry
// one or more integer indices in square brackets.
func NameMustBeValid(name string) {
	for _, token := range strings.Split(name, ".") {
		if err := checkNameToken(token); err != "" {
			log.Panicf("name %q is not valid: %s", name, err)
		}
	}
}

func checkNameToken(token string) string {
	elem, indices, _ := strings.Cut(token, "[")
	if elem == "" {
		return "empty element name"
	}

	if !unicode.IsUpper([]rune(elem)[0]) {
		return "element " + elem + " must be capitalized"
	}

	if indices == "" {
		return ""
	}

	for _, idx := range strings.Split("["+indices, "[")[1:] {
		if !strings.HasSuffix(idx, "]") {
			return "bracket must match"
		}

		if _, err := strconv.Atoi(strings.TrimSuffix(idx, "]")); err != nil {
			return "index must be an integer"
		}
	}

	return ""
}

// IndexedName builds a name token with an index, e.g. IndexedName("SM", 2)
// returns "SM[2]".
func IndexedName(elem string, index int) string {
	return elem + "[" + strconv.Itoa(index) + "]"
}
