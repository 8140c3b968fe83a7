package imap

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// SearchDateFormat is the date layout of SINCE, BEFORE and friends.
const SearchDateFormat = "2-Jan-2006"

// Criterion is one node of a search expression.
type Criterion interface {
	writeTo(w *criteriaWriter) error
}

type criteriaWriter struct {
	encoder  *encoding.Encoder
	parts    []string
	nonASCII bool
}

func (w *criteriaWriter) atom(s string) {
	w.parts = append(w.parts, s)
}

// text transcodes s and renders it quoted, or as a literal when the
// encoded bytes are not 7-bit safe.
func (w *criteriaWriter) text(s string) error {
	if !isASCII(s) {
		w.nonASCII = true
	}
	if w.encoder != nil {
		encoded, err := w.encoder.String(s)
		if err != nil {
			return &Error{Kind: KindEncoding, Op: "search", Diagnostic: "cannot encode " + strconv.Quote(s) + ": " + err.Error()}
		}
		s = encoded
	}
	w.parts = append(w.parts, astring(s))
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

type keyCriterion string

func (c keyCriterion) writeTo(w *criteriaWriter) error {
	w.atom(string(c))
	return nil
}

type textCriterion struct {
	key   string
	field string
	value string
}

func (c textCriterion) writeTo(w *criteriaWriter) error {
	w.atom(c.key)
	if c.field != "" {
		w.atom(astring(c.field))
	}
	return w.text(c.value)
}

type dateCriterion struct {
	key  string
	date time.Time
}

func (c dateCriterion) writeTo(w *criteriaWriter) error {
	w.atom(c.key + " " + c.date.Format(SearchDateFormat))
	return nil
}

type sizeCriterion struct {
	key  string
	size uint32
}

func (c sizeCriterion) writeTo(w *criteriaWriter) error {
	w.atom(c.key + " " + strconv.FormatUint(uint64(c.size), 10))
	return nil
}

type setCriterion struct {
	set *SequenceSet
}

func (c setCriterion) writeTo(w *criteriaWriter) error {
	if c.set.UID() {
		w.atom("UID " + c.set.String())
	} else {
		w.atom(c.set.String())
	}
	return nil
}

type orCriterion struct {
	a, b Criterion
}

func (c orCriterion) writeTo(w *criteriaWriter) error {
	w.atom("OR")
	if err := writeOperand(w, c.a); err != nil {
		return err
	}
	return writeOperand(w, c.b)
}

type notCriterion struct {
	c Criterion
}

func (c notCriterion) writeTo(w *criteriaWriter) error {
	w.atom("NOT")
	return writeOperand(w, c.c)
}

// writeOperand renders c as a single search key, parenthesizing
// multi-key expressions.
func writeOperand(w *criteriaWriter, c Criterion) error {
	e, ok := c.(*SearchExpression)
	if !ok {
		return c.writeTo(w)
	}
	switch len(e.criteria) {
	case 0:
		w.atom("ALL")
		return nil
	case 1:
		return writeOperand(w, e.criteria[0])
	}
	inner := &criteriaWriter{encoder: w.encoder}
	if err := e.writeTo(inner); err != nil {
		return err
	}
	w.nonASCII = w.nonASCII || inner.nonASCII
	w.atom("(" + strings.Join(inner.parts, " ") + ")")
	return nil
}

// SearchExpression is an AND list of criteria.
type SearchExpression struct {
	criteria []Criterion
}

// NewSearch returns an expression matching messages that satisfy all of c.
func NewSearch(c ...Criterion) *SearchExpression {
	return &SearchExpression{criteria: c}
}

// Add appends criteria to the AND list.
func (e *SearchExpression) Add(c ...Criterion) *SearchExpression {
	e.criteria = append(e.criteria, c...)
	return e
}

// Empty reports whether the expression has no criteria.
func (e *SearchExpression) Empty() bool {
	return e == nil || len(e.criteria) == 0
}

func (e *SearchExpression) writeTo(w *criteriaWriter) error {
	for _, c := range e.criteria {
		if c == nil {
			continue
		}
		if err := c.writeTo(w); err != nil {
			return err
		}
	}
	return nil
}

// Serialize renders the expression as SEARCH criteria. Text values are
// transcoded from UTF-8 to charset and a CHARSET directive is prefixed.
// With an empty charset, CHARSET UTF-8 is used when any text value is not
// ASCII. No criteria renders ALL.
func (e *SearchExpression) Serialize(charset string) (string, error) {
	criteria, used, err := e.render(charset, false)
	if err != nil {
		return "", err
	}
	if used != "" {
		return "CHARSET " + used + " " + criteria, nil
	}
	return criteria, nil
}

// lookupCharset resolves an IANA charset name, falling back to the WHATWG
// labels. The encoders fail on runes the charset cannot represent.
func lookupCharset(label string) encoding.Encoding {
	if enc, err := ianaindex.MIME.Encoding(label); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(label); err == nil && enc != nil {
		return enc
	}
	if enc, err := htmlindex.Get(label); err == nil {
		return enc
	}
	return nil
}

// render returns the criteria without a CHARSET directive and the charset
// the text values were encoded in. When requireCharset is set, as SORT
// needs, the charset is never empty.
func (e *SearchExpression) render(label string, requireCharset bool) (criteria string, used string, err error) {
	w := &criteriaWriter{}
	if label != "" {
		enc := lookupCharset(label)
		if enc == nil {
			return "", "", &Error{Kind: KindValidation, Op: "search", Diagnostic: "unknown charset " + strconv.Quote(label)}
		}
		w.encoder = enc.NewEncoder()
	}

	if e != nil {
		if err = e.writeTo(w); err != nil {
			return "", "", err
		}
	}
	if len(w.parts) == 0 {
		w.atom("ALL")
	}

	used = label
	if used == "" && (w.nonASCII || requireCharset) {
		used = "UTF-8"
	}
	return strings.Join(w.parts, " "), used, nil
}

// Or matches messages satisfying a or b.
func Or(a, b Criterion) Criterion { return orCriterion{a: a, b: b} }

// Not matches messages not satisfying c.
func Not(c Criterion) Criterion { return notCriterion{c: c} }

func Subject(s string) Criterion { return textCriterion{key: "SUBJECT", value: s} }
func Body(s string) Criterion    { return textCriterion{key: "BODY", value: s} }
func Text(s string) Criterion    { return textCriterion{key: "TEXT", value: s} }
func From(s string) Criterion    { return textCriterion{key: "FROM", value: s} }
func To(s string) Criterion      { return textCriterion{key: "TO", value: s} }
func Cc(s string) Criterion      { return textCriterion{key: "CC", value: s} }
func Bcc(s string) Criterion     { return textCriterion{key: "BCC", value: s} }

// Header matches messages whose field header contains value.
func Header(field, value string) Criterion {
	return textCriterion{key: "HEADER", field: field, value: value}
}

func Keyword(flag string) Criterion   { return keyCriterion("KEYWORD " + flag) }
func Unkeyword(flag string) Criterion { return keyCriterion("UNKEYWORD " + flag) }

func Since(t time.Time) Criterion      { return dateCriterion{key: "SINCE", date: t} }
func Before(t time.Time) Criterion     { return dateCriterion{key: "BEFORE", date: t} }
func On(t time.Time) Criterion         { return dateCriterion{key: "ON", date: t} }
func SentSince(t time.Time) Criterion  { return dateCriterion{key: "SENTSINCE", date: t} }
func SentBefore(t time.Time) Criterion { return dateCriterion{key: "SENTBEFORE", date: t} }
func SentOn(t time.Time) Criterion     { return dateCriterion{key: "SENTON", date: t} }

func Larger(n uint32) Criterion  { return sizeCriterion{key: "LARGER", size: n} }
func Smaller(n uint32) Criterion { return sizeCriterion{key: "SMALLER", size: n} }

// Set matches the messages of s, by UID or by message number.
func Set(s *SequenceSet) Criterion { return setCriterion{set: s} }

var (
	All        Criterion = keyCriterion("ALL")
	Answered   Criterion = keyCriterion("ANSWERED")
	Unanswered Criterion = keyCriterion("UNANSWERED")
	Deleted    Criterion = keyCriterion("DELETED")
	Undeleted  Criterion = keyCriterion("UNDELETED")
	Draft      Criterion = keyCriterion("DRAFT")
	Undraft    Criterion = keyCriterion("UNDRAFT")
	Flagged    Criterion = keyCriterion("FLAGGED")
	Unflagged  Criterion = keyCriterion("UNFLAGGED")
	Seen       Criterion = keyCriterion("SEEN")
	Unseen     Criterion = keyCriterion("UNSEEN")
	Recent     Criterion = keyCriterion("RECENT")
	Newly      Criterion = keyCriterion("NEW")
	Old        Criterion = keyCriterion("OLD")
)
