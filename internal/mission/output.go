package mission

// Option is one generated alternative offered for review.
type Option struct {
	Label  string   `json:"label"`
	Values []string `json:"values,omitempty"`
}

// StageOutput is what a generation stage returns. Which fields are populated
// depends on the stage kind.
type StageOutput struct {
	Text     string            `json:"text,omitempty"`
	Options  []Option          `json:"options,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	ImageRef string            `json:"imageRef,omitempty"`
}

// Labels returns the option labels in order.
func (o StageOutput) Labels() []string {
	out := make([]string, len(o.Options))
	for i, opt := range o.Options {
		out[i] = opt.Label
	}
	return out
}
