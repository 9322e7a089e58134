package gls

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Signature returns a stable content hash of the latest status line.
// Identical (when, text) pairs always hash identically across runs;
// collisions are an accepted low-probability approximation.
func Signature(when, text string) string {
	h := fnv.New32a()
	if when != "" {
		_, _ = h.Write([]byte(when))
		_, _ = h.Write([]byte(" :: "))
	}
	_, _ = h.Write([]byte(text))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// Терминальные статусы на языках, которыми GLS отвечает в Европе.
var deliveredTerms = []string{
	"delivered",
	"received",
	"bezorgd",
	"geleverd",
	"zustellt",
	"zugestellt",
	"ausgeliefert",
	"livré",
	"entregado",
	"consegnato",
}

// DeliveredLike reports whether the status text reads as a final delivery
// in any of the carrier's display languages.
func DeliveredLike(text string) bool {
	low := strings.ToLower(text)
	for _, term := range deliveredTerms {
		if strings.Contains(low, term) {
			return true
		}
	}
	return false
}

// Change is the pure outcome of comparing a poll result against the
// previously stored signature. Delivered is only classified when the
// status actually changed.
type Change struct {
	Changed   bool
	Signature string
	Delivered bool
}

func DetectChange(prevSignature *string, latestWhen, latestText string) Change {
	sig := Signature(latestWhen, latestText)
	changed := prevSignature == nil || *prevSignature != sig
	return Change{
		Changed:   changed,
		Signature: sig,
		Delivered: changed && DeliveredLike(latestText),
	}
}
