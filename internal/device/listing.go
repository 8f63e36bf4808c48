package device

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pbak/internal/pbak"
)

// Entry is one file reported by the device.
type Entry struct {
	Index int
	Name  string
}

// Listing is the device's index to filename mapping, ordered by index.
type Listing struct {
	entries []Entry
}

// Entries returns the entries in ascending index order.
func (l *Listing) Entries() []Entry {
	return l.entries
}

// Len returns the number of entries.
func (l *Listing) Len() int {
	return len(l.entries)
}

// Name returns the filename at index, if listed.
func (l *Listing) Name(index int) (string, bool) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].Index >= index })
	if i < len(l.entries) && l.entries[i].Index == index {
		return l.entries[i].Name, true
	}
	return "", false
}

// LastIndex returns the highest listed index, or 0 for an empty listing.
func (l *Listing) LastIndex() int {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Index
}

// headerRe matches the per-folder summary gphoto2 prints before its records.
var headerRe = regexp.MustCompile(`^There (?:is|are) (\d+) files? in folder`)

// ParseListing extracts records from the device tool's listing output.
//
// A record is a line whose first field is '#' followed by digits, with the
// filename as the second field. Every other line is ignored. When an index
// repeats, the later record wins.
//
// Input with no records is a valid empty listing unless it was clearly meant
// to hold records: a '#'-prefixed line failed to parse, or a folder header
// announced a non-zero number of files. That case is a *pbak.ProtocolParseError.
func ParseListing(raw string) (*Listing, error) {
	byIndex := make(map[int]string)
	var firstBad *pbak.ProtocolParseError
	announced := 0

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if m := headerRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			n, _ := strconv.Atoi(m[1])
			announced += n
			continue
		}

		if !strings.HasPrefix(fields[0], "#") {
			continue
		}
		index, err := strconv.Atoi(fields[0][1:])
		if err != nil || index < 0 || len(fields) < 2 {
			if firstBad == nil {
				firstBad = &pbak.ProtocolParseError{Line: lineNo, Text: line, Reason: "not an index record"}
			}
			continue
		}
		byIndex[index] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading device listing: %w", err)
	}

	if len(byIndex) == 0 {
		if firstBad != nil {
			return nil, firstBad
		}
		if announced > 0 {
			return nil, &pbak.ProtocolParseError{
				Reason: fmt.Sprintf("header announced %d files but no records were found", announced),
			}
		}
	}

	entries := make([]Entry, 0, len(byIndex))
	for index, name := range byIndex {
		entries = append(entries, Entry{Index: index, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return &Listing{entries: entries}, nil
}

// NextNewRange finds the first listed file, in index order, whose name is not
// in existing and returns the directive covering it and everything after it.
// It returns pbak.ErrNoNewFiles when every listed name already exists.
func NextNewRange(listing *Listing, existing map[string]struct{}, mode pbak.RangeMode) (pbak.RetrievalDirective, error) {
	if mode == "" {
		mode = pbak.RangeListingSize
	}

	for _, e := range listing.Entries() {
		if _, ok := existing[e.Name]; ok {
			continue
		}
		d := pbak.RetrievalDirective{
			Start:     e.Index,
			LastIndex: listing.LastIndex(),
			Mode:      mode,
		}
		switch mode {
		case pbak.RangeToEnd:
			d.Count = d.LastIndex - d.Start + 1
		default:
			d.Count = listing.Len()
		}
		return d, nil
	}
	return pbak.RetrievalDirective{}, pbak.ErrNoNewFiles
}
