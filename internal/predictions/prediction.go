// Package predictions reads sports picks from a spreadsheet range and
// splits them into free and premium lists.
package predictions

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	StatusPending = "pending"
	StatusWon     = "won"
	StatusLost    = "lost"
)

// Prediction is one spreadsheet row. Columns without a dedicated field are kept in Extra.
type Prediction struct {
	ID            string
	Match         string
	Pick          string
	Odds          float64
	IsFree        bool
	Status        string
	Justification string
	Extra         map[string]string
}

// MarshalJSON flattens Extra next to the known columns, keyed by lower-cased header.
func (p Prediction) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extra)+7)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["id"] = p.ID
	out["match"] = p.Match
	out["pick"] = p.Pick
	out["odds"] = p.Odds
	out["isfree"] = p.IsFree
	out["status"] = p.Status
	out["justification"] = p.Justification
	return json.Marshal(out)
}

// ParseRows turns the header row plus data rows into predictions.
// Rows with an empty match or pick, or odds that are not a finite number, are dropped.
// A cell past the end of a short row counts as absent.
func ParseRows(rows [][]string) []Prediction {
	if len(rows) < 2 {
		return []Prediction{}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	out := make([]Prediction, 0, len(rows)-1)
	for index, row := range rows[1:] {
		p := Prediction{ID: strconv.Itoa(index), Status: StatusPending, Odds: math.NaN()}

		for i, header := range headers {
			cell, present := "", i < len(row)
			if present {
				cell = row[i]
			}

			switch header {
			case "isfree":
				p.IsFree = strings.EqualFold(strings.TrimSpace(cell), "true")
			case "odds":
				if present {
					p.Odds = parseOdds(cell)
				} else {
					p.Odds = math.NaN()
				}
			case "status":
				status := strings.ToLower(strings.TrimSpace(cell))
				if status == "" {
					status = StatusPending
				}
				p.Status = status
			case "match":
				p.Match = strings.TrimSpace(cell)
			case "pick":
				p.Pick = strings.TrimSpace(cell)
			case "justification":
				p.Justification = strings.TrimSpace(cell)
			case "id":
				p.ID = strings.TrimSpace(cell)
			default:
				if p.Extra == nil {
					p.Extra = make(map[string]string)
				}
				p.Extra[header] = strings.TrimSpace(cell)
			}
		}

		if p.Match == "" || p.Pick == "" || math.IsNaN(p.Odds) || math.IsInf(p.Odds, 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseOdds accepts a comma as decimal separator and reads the longest
// leading number, so "1.85 (avg)" yields 1.85. Anything else is NaN.
func parseOdds(raw string) float64 {
	s := strings.TrimSpace(strings.Replace(raw, ",", ".", 1))

	end, digits := 0, 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		if exp < len(s) && isDigit(s[exp]) {
			for exp < len(s) && isDigit(s[exp]) {
				exp++
			}
			end = exp
		}
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		// overflow parses to ±Inf with an error; callers drop it either way
		return math.NaN()
	}
	return v
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Free keeps the picks flagged isfree.
func Free(ps []Prediction) []Prediction {
	return filter(ps, true)
}

// Premium keeps the picks not flagged isfree.
func Premium(ps []Prediction) []Prediction {
	return filter(ps, false)
}

func filter(ps []Prediction, free bool) []Prediction {
	out := make([]Prediction, 0, len(ps))
	for _, p := range ps {
		if p.IsFree == free {
			out = append(out, p)
		}
	}
	return out
}
