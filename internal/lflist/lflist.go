// Package lflist loads forbidden/limited card lists in the lflist.conf format:
//
//	#comment
//	!2024.01 TCG
//	89631139 0 --Blue-Eyes White Dragon
//
// Each list is identified towards clients by a hash of its entries.
package lflist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const hashSeed uint32 = 0x7dfcee6a

// List is one named forbidden/limited list.
type List struct {
	Name string
	Hash uint32
	// Maximum copies per card code.
	Limits map[uint32]int
}

// Provider exposes the loaded lists in file order.
type Provider interface {
	Lists() []List
}

// Lists is a Provider backed by a fixed slice.
type Lists []List

func (l Lists) Lists() []List { return l }

// LoadFile reads the lists stored at path.
func LoadFile(path string) (Lists, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening forbidden list file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses lists from r. Entries before the first "!name" line are ignored.
func Load(r io.Reader) (Lists, error) {
	var lists Lists
	var current *List

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "!") {
			lists = append(lists, List{
				Name:   strings.TrimSpace(line[1:]),
				Hash:   hashSeed,
				Limits: make(map[uint32]int),
			})
			current = &lists[len(lists)-1]
			continue
		}
		if current == nil {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected a card code and a limit", lineNo)
		}
		code, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid card code %q", lineNo, fields[0])
		}
		limit, err := strconv.Atoi(fields[1])
		if err != nil || limit < 0 || limit > 2 {
			return nil, fmt.Errorf("line %d: invalid limit %q", lineNo, fields[1])
		}

		current.Limits[uint32(code)] = limit
		current.Hash ^= entryHash(uint32(code), uint(limit))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading forbidden lists: %w", err)
	}
	return lists, nil
}

func entryHash(code uint32, limit uint) uint32 {
	return ((code << 18) | (code >> 14)) ^ ((code << (27 + limit)) | (code >> (5 - limit)))
}

// Resolve returns hash if a list with that hash exists, otherwise the hash
// of the first list. Without any lists it returns 0.
func Resolve(p Provider, hash uint32) uint32 {
	lists := p.Lists()
	for _, l := range lists {
		if l.Hash == hash {
			return hash
		}
	}
	if len(lists) == 0 {
		return 0
	}
	return lists[0].Hash
}
