package analyze

// LoadError marks a failure while fetching or loading model artifacts, as
// opposed to a failure while running the model.
type LoadError struct {
	Cause error
}

func (e *LoadError) Error() string { return "load model: " + e.Cause.Error() }

func (e *LoadError) Unwrap() error { return e.Cause }

// InferenceError marks a failure anywhere between tokenization and decoding.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string { return "inference: " + e.Cause.Error() }

func (e *InferenceError) Unwrap() error { return e.Cause }
