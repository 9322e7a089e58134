package gls

// CandidateArrays returns every array in doc that plausibly holds status
// events. The well-known tuStatus path (top level, or one level under
// "data") short-circuits the generic scan.
func (x *Extractor) CandidateArrays(doc any) [][]any {
	if obj, ok := doc.(map[string]any); ok {
		if arr, ok := obj["tuStatus"].([]any); ok {
			return [][]any{arr}
		}
		if data, ok := obj["data"].(map[string]any); ok {
			if arr, ok := data["tuStatus"].([]any); ok {
				return [][]any{arr}
			}
		}
	}

	var out [][]any
	x.scan(doc, &out)
	return out
}

// scan walks depth-first through arrays and object values. A non-empty
// array with at least one event-like element is collected; the walk still
// descends into it, since event arrays can nest inside each other.
func (x *Extractor) scan(node any, out *[][]any) {
	switch v := node.(type) {
	case []any:
		if len(v) > 0 {
			for _, el := range v {
				if x.eventLike(el) {
					*out = append(*out, v)
					break
				}
			}
		}
		for _, el := range v {
			x.scan(el, out)
		}
	case map[string]any:
		for _, el := range v {
			x.scan(el, out)
		}
	}
}
