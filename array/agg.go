package array

import "github.com/lumen-db/lumen"

// AggState is a per-call aggregate accumulator (spec.md §4.5): Update folds
// in a whole array, UpdateSingle folds in one row-at-a-time value, and
// Output materializes the current running result.
type AggState interface {
	Update(a *Array)
	UpdateSingle(v lumen.Value)
	Output() lumen.Value
}

// CountStarState implements count(*): counts every row including nulls.
type CountStarState struct{ n int64 }

func NewCountStarState() *CountStarState { return &CountStarState{} }
func (s *CountStarState) Update(a *Array) { s.n += int64(a.Len()) }
func (s *CountStarState) UpdateSingle(lumen.Value) { s.n++ }
func (s *CountStarState) Output() lumen.Value { return lumen.Int64Value(s.n) }

// CountState implements count(expr): counts non-null rows only.
type CountState struct{ n int64 }

func NewCountState() *CountState { return &CountState{} }
func (s *CountState) Update(a *Array) {
	for i := 0; i < a.Len(); i++ {
		if !a.IsNull(i) {
			s.n++
		}
	}
}
func (s *CountState) UpdateSingle(v lumen.Value) {
	if !v.IsNull() {
		s.n++
	}
}
func (s *CountState) Output() lumen.Value { return lumen.Int64Value(s.n) }

// SumState implements sum(expr) over any numeric kind, widening to Float64
// internally and casting back to the declared return type on Output.
type SumState struct {
	returnType lumen.DataType
	sum        float64
	anyNonNull bool
}

func NewSumState(returnType lumen.DataType) *SumState {
	return &SumState{returnType: returnType}
}

func (s *SumState) Update(a *Array) {
	for i := 0; i < a.Len(); i++ {
		if !a.IsNull(i) {
			s.sum += a.Get(i).AsFloat64()
			s.anyNonNull = true
		}
	}
}

func (s *SumState) UpdateSingle(v lumen.Value) {
	if !v.IsNull() {
		s.sum += v.AsFloat64()
		s.anyNonNull = true
	}
}

func (s *SumState) Output() lumen.Value {
	if !s.anyNonNull {
		return lumen.NullValue()
	}
	v, err := lumen.Cast(lumen.Float64Value(s.sum), s.returnType)
	if err != nil {
		return lumen.Float64Value(s.sum)
	}
	return v
}

// MinMaxState implements min(expr)/max(expr) using the total ordering
// (lumen.CompareTotal), so NULLs never win and NaN orders deterministically.
type MinMaxState struct {
	isMax   bool
	current lumen.Value
	has     bool
}

func NewMinState() *MinMaxState { return &MinMaxState{current: lumen.NullValue()} }
func NewMaxState() *MinMaxState { return &MinMaxState{isMax: true, current: lumen.NullValue()} }

func (s *MinMaxState) Update(a *Array) {
	for i := 0; i < a.Len(); i++ {
		if !a.IsNull(i) {
			s.UpdateSingle(a.Get(i))
		}
	}
}

func (s *MinMaxState) UpdateSingle(v lumen.Value) {
	if v.IsNull() {
		return
	}
	if !s.has {
		s.current = v
		s.has = true
		return
	}
	c := lumen.CompareTotal(v, s.current)
	if (s.isMax && c > 0) || (!s.isMax && c < 0) {
		s.current = v
	}
}

func (s *MinMaxState) Output() lumen.Value {
	if !s.has {
		return lumen.NullValue()
	}
	return s.current
}

// FirstLastState implements first(expr)/last(expr): the first or last
// non-null value seen, in input order.
type FirstLastState struct {
	isLast  bool
	current lumen.Value
	has     bool
}

func NewFirstState() *FirstLastState { return &FirstLastState{current: lumen.NullValue()} }
func NewLastState() *FirstLastState  { return &FirstLastState{isLast: true, current: lumen.NullValue()} }

func (s *FirstLastState) Update(a *Array) {
	for i := 0; i < a.Len(); i++ {
		if !a.IsNull(i) {
			s.UpdateSingle(a.Get(i))
		}
	}
}

func (s *FirstLastState) UpdateSingle(v lumen.Value) {
	if v.IsNull() {
		return
	}
	if s.isLast {
		s.current = v
		s.has = true
		return
	}
	if !s.has {
		s.current = v
		s.has = true
	}
}

func (s *FirstLastState) Output() lumen.Value {
	if !s.has {
		return lumen.NullValue()
	}
	return s.current
}
