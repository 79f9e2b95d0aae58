package runner

// maxExitCode keeps the failure count inside the portable exit status range
const maxExitCode = 125

// Tally counts verification outcomes. A configuration error that aborts
// an image type and format counts as one failure.
type Tally struct {
	Passed  int
	Failed  int
	Skipped int
}

// Total is the number of cases that ran
func (t Tally) Total() int { return t.Passed + t.Failed }

// ExitCode is the failure count, capped
func (t Tally) ExitCode() int {
	return min(t.Failed, maxExitCode)
}

func (t *Tally) Add(o Tally) {
	t.Passed += o.Passed
	t.Failed += o.Failed
	t.Skipped += o.Skipped
}
