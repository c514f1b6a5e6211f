// Package resolver classifies free-text turns for low-ambiguity wizard steps
// without a model call. It is the fast path: pure functions, no I/O. Anything
// it does not recognize is deferred to the generative agent.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/priya/fete/internal/plan"
)

// Intent is the classified purpose of a turn.
type Intent string

const (
	IntentAddGuests       Intent = "add-guests"
	IntentRemoveGuest     Intent = "remove-guest"
	IntentConfirmGuests   Intent = "confirm-guest-list"
	IntentRemoveDish      Intent = "remove-dish"
	IntentConfirmDishes   Intent = "confirm-dishes"
	IntentConfirmSchedule Intent = "confirm-schedule"
	IntentClarify         Intent = "ask-clarification"
)

// Resolution is the outcome of a deterministic parse. Handled=false means
// the caller should route the turn to the agent instead.
type Resolution struct {
	Handled  bool
	Intent   Intent
	Actions  []plan.Action
	Question string // set when Intent is IntentClarify
}

var unhandled = Resolution{}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().\-]{5,}\d`)
	// "Name - contact" one pair per line. Accepts -, en/em dash, or colon.
	pairRe    = regexp.MustCompile(`^\s*([^-–—:]+?)\s*[-–—:]\s*(.+?)\s*$`)
	ordinalRe = regexp.MustCompile(`#(\d+)`)
	verbNumRe = regexp.MustCompile(`\b(?:remove|delete|drop|take)\b\D*?(\d+)`)
	verbRe    = regexp.MustCompile(`\b(?:remove|delete|drop|take)\b\s+(?:off\s+)?(.+)$`)
	wordOrdRe = regexp.MustCompile(`\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// Short negative/closing utterances that end a step. Compared against the
// normalized (lowercase, punctuation-stripped) full turn, never a fragment.
var closingUtterances = map[string]bool{
	"no": true, "nope": true, "nah": true, "no more": true, "none": true,
	"done": true, "all done": true, "im done": true, "were done": true,
	"thats it": true, "that is it": true, "thats all": true,
	"thats everyone": true, "thats everything": true, "nothing else": true,
	"looks good": true, "all set": true, "finished": true, "finish": true,
	"no thats it": true, "no thats all": true,
}

// Resolve maps a raw turn into an intent plus structured actions, or reports
// the turn unhandled. Adds are attempted before remove/done recognition:
// additions are the higher-frequency intent and must not be suppressed by a
// name that happens to collide with a removal keyword.
func Resolve(step plan.Step, text string, s *plan.Session) Resolution {
	switch step {
	case plan.StepGuests:
		return resolveGuests(text, s)
	case plan.StepDishes:
		return resolveDishes(text, s)
	case plan.StepSchedule:
		if isClosing(text) {
			return Resolution{
				Handled: true,
				Intent:  IntentConfirmSchedule,
				Actions: []plan.Action{{Kind: plan.ActionConfirmSchedule}},
			}
		}
	}
	return unhandled
}

func resolveGuests(text string, s *plan.Session) Resolution {
	if adds := parseGuestAdds(text); len(adds) > 0 {
		return Resolution{Handled: true, Intent: IntentAddGuests, Actions: adds}
	}

	names := make([]string, len(s.Guests))
	for i, g := range s.Guests {
		names[i] = g.Name
	}
	switch res := parseRemoval(text, names); res.kind {
	case removalIndex:
		return Resolution{
			Handled: true,
			Intent:  IntentRemoveGuest,
			Actions: []plan.Action{{Kind: plan.ActionRemoveGuest, Index: res.index}},
		}
	case removalAmbiguous:
		return Resolution{
			Handled:  true,
			Intent:   IntentClarify,
			Question: fmt.Sprintf("I found %d guests matching %q. Which one should I remove? Reply with the number, e.g. #2.", res.matches, res.candidate),
		}
	case removalUnknown:
		// Zero matches: let the agent ask what the user meant.
		return unhandled
	}

	if isClosing(text) {
		return Resolution{
			Handled: true,
			Intent:  IntentConfirmGuests,
			Actions: []plan.Action{{Kind: plan.ActionConfirmGuests}},
		}
	}
	return unhandled
}

func resolveDishes(text string, s *plan.Session) Resolution {
	// Dish additions always go through the agent; they need recipe
	// semantics the rule engine cannot supply.
	names := make([]string, 0, s.Dishes.Len())
	for _, d := range s.Dishes.Existing {
		names = append(names, d.Name)
	}
	for _, d := range s.Dishes.New {
		names = append(names, d.Name)
	}

	switch res := parseRemoval(text, names); res.kind {
	case removalIndex:
		a := plan.Action{Kind: plan.ActionRemoveDish, Index: res.index}
		if res.index >= len(s.Dishes.Existing) {
			a.Index = res.index - len(s.Dishes.Existing)
			a.FromNew = true
		}
		return Resolution{Handled: true, Intent: IntentRemoveDish, Actions: []plan.Action{a}}
	case removalAmbiguous:
		return Resolution{
			Handled:  true,
			Intent:   IntentClarify,
			Question: fmt.Sprintf("I found %d dishes matching %q. Which one should I remove? Reply with the number, e.g. #2.", res.matches, res.candidate),
		}
	case removalUnknown:
		return unhandled
	}

	if isClosing(text) {
		return Resolution{
			Handled: true,
			Intent:  IntentConfirmDishes,
			Actions: []plan.Action{{Kind: plan.ActionConfirmDishes}},
		}
	}
	return unhandled
}

// parseGuestAdds extracts add-guest actions. Line-oriented "Name - contact"
// pairs are tried first; failing that, bare email/phone tokens anywhere in
// the text each become a guest, with nearby free text used as the name only
// when unambiguous.
func parseGuestAdds(text string) []plan.Action {
	var actions []plan.Action

	for _, line := range strings.Split(text, "\n") {
		m := pairRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, contact := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		g, ok := guestFromContact(name, contact)
		if !ok {
			continue
		}
		actions = append(actions, plan.Action{Kind: plan.ActionAddGuest, Guest: &g})
	}
	if len(actions) > 0 {
		return actions
	}

	// No structured lines: scan comma/newline separated segments for bare
	// contact tokens. A segment may carry several contacts separated only by
	// whitespace; every token becomes its own guest, and nearby free text is
	// used as a name only when the segment holds exactly one contact.
	for _, seg := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' || r == ';' }) {
		emails := emailRe.FindAllString(seg, -1)
		residue := seg
		for _, e := range emails {
			residue = strings.Replace(residue, e, " ", 1)
		}
		var phones []string
		for _, span := range phoneRe.FindAllString(residue, -1) {
			phones = append(phones, splitPhoneSpan(span)...)
		}

		contacts := len(emails) + len(phones)
		for _, e := range emails {
			g := plan.Guest{Email: e}
			if contacts == 1 {
				g.Name = nearbyName(seg, e)
			}
			actions = append(actions, plan.Action{Kind: plan.ActionAddGuest, Guest: &g})
		}
		for _, p := range phones {
			g := plan.Guest{Phone: strings.TrimSpace(p)}
			if contacts == 1 {
				g.Name = nearbyName(seg, p)
			}
			actions = append(actions, plan.Action{Kind: plan.ActionAddGuest, Guest: &g})
		}
	}
	return actions
}

// splitPhoneSpan breaks a phone-regex match into individual numbers. The
// regex tolerates internal whitespace so grouped numbers like "+1 555 0100"
// stay whole, which also lets two adjacent full numbers match as one span;
// a whitespace chunk that is a complete number on its own (7+ digits) when
// the accumulated chunks already are one starts a new phone.
func splitPhoneSpan(span string) []string {
	chunks := strings.Fields(span)
	var out []string
	var cur []string
	digits := 0
	for _, c := range chunks {
		d := countDigits(c)
		if digits >= 7 && d >= 7 {
			out = append(out, strings.Join(cur, " "))
			cur, digits = nil, 0
		}
		cur = append(cur, c)
		digits += d
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func guestFromContact(name, contact string) (plan.Guest, bool) {
	if email := emailRe.FindString(contact); email != "" {
		return plan.Guest{Name: name, Email: email}, true
	}
	if phone := phoneRe.FindString(contact); phone != "" {
		return plan.Guest{Name: name, Phone: strings.TrimSpace(phone)}, true
	}
	return plan.Guest{}, false
}

// nearbyName returns the free text around a contact token when it plausibly
// is a person's name: one to three words, no digits, no second contact.
func nearbyName(segment, token string) string {
	residue := strings.TrimSpace(strings.Replace(segment, token, "", 1))
	residue = strings.Trim(residue, " -–—:().")
	if residue == "" || strings.ContainsAny(residue, "@0123456789") {
		return ""
	}
	if words := strings.Fields(residue); len(words) > 3 {
		return ""
	}
	return residue
}

type removalKind int

const (
	removalNone removalKind = iota
	removalIndex
	removalAmbiguous
	removalUnknown
)

type removal struct {
	kind      removalKind
	index     int
	candidate string
	matches   int
}

// parseRemoval resolves ordinal markers ("#2", "the second one", "remove 2")
// and free-text names against the current entries. Name matching is
// case-insensitive exact-or-substring with the zero/one/many trichotomy:
// zero matches defer to the agent, many ask for clarification.
func parseRemoval(text string, names []string) removal {
	lowered := strings.ToLower(strings.TrimSpace(text))

	if m := ordinalRe.FindStringSubmatch(lowered); m != nil {
		return removal{kind: removalIndex, index: atoi(m[1]) - 1}
	}
	if m := wordOrdRe.FindStringSubmatch(lowered); m != nil {
		return removal{kind: removalIndex, index: ordinalWords[m[1]] - 1}
	}
	if m := verbNumRe.FindStringSubmatch(lowered); m != nil {
		return removal{kind: removalIndex, index: atoi(m[1]) - 1}
	}

	m := verbRe.FindStringSubmatch(lowered)
	if m == nil {
		return removal{kind: removalNone}
	}
	candidate := strings.TrimSpace(m[1])
	candidate = strings.TrimPrefix(candidate, "the ")
	candidate = strings.TrimSuffix(candidate, " one")
	candidate = strings.Trim(candidate, " .!?,")
	if candidate == "" {
		return removal{kind: removalNone}
	}

	matched := -1
	count := 0
	for i, name := range names {
		ln := strings.ToLower(name)
		if ln == candidate || strings.Contains(ln, candidate) {
			matched = i
			count++
		}
	}
	switch count {
	case 0:
		return removal{kind: removalUnknown, candidate: candidate}
	case 1:
		return removal{kind: removalIndex, index: matched}
	default:
		return removal{kind: removalAmbiguous, candidate: candidate, matches: count}
	}
}

func isClosing(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.NewReplacer("'", "", "’", "", ".", "", "!", "", ",", "").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	return closingUtterances[norm]
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
