package analyze

// defaultSubstitutions maps heavyweight model identifiers to a small stand-in
// so the service stays responsive on modest hardware. The response reports
// the substitution so clients know which weights actually ran.
var defaultSubstitutions = map[string]string{
	"meta-llama/Meta-Llama-3-8B-Instruct": "distilgpt2",
	"mistralai/Mistral-7B-Instruct-v0.2":  "distilgpt2",
}

// Resolver decides which model identifier actually gets loaded for a
// requested one.
type Resolver struct {
	subs map[string]string
}

// NewResolver builds a resolver from the built-in substitution table merged
// with overrides, typically sourced from the config file. An override with
// an empty value removes the built-in entry for that model.
func NewResolver(overrides map[string]string) *Resolver {
	subs := make(map[string]string, len(defaultSubstitutions)+len(overrides))
	for k, v := range defaultSubstitutions {
		subs[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			delete(subs, k)
			continue
		}
		subs[k] = v
	}
	return &Resolver{subs: subs}
}

// Resolve returns the model to load and whether a substitution occurred.
func (r *Resolver) Resolve(requested string) (string, bool) {
	if sub, ok := r.subs[requested]; ok && sub != requested {
		return sub, true
	}
	return requested, false
}
