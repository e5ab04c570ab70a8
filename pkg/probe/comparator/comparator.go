package comparator

import "fmt"

// Model contains operands and operator for the comparison operations
// a and b attribute belongs to operands and operator attribute belongs to operator
type Model struct {
	a        float64
	b        float64
	operator string
}

// FirstValue sets the first operand, the expected value
func FirstValue(a float64) *Model {
	model := Model{}
	return model.FirstValue(a)
}

// FirstValue sets the first operand, the expected value
func (model *Model) FirstValue(a float64) *Model {
	model.a = a
	return model
}

// SecondValue sets the second operand, the actual value
func (model *Model) SecondValue(b float64) *Model {
	model.b = b
	return model
}

// Criteria sets the criteria/operator
func (model *Model) Criteria(criteria string) *Model {
	model.operator = criteria
	return model
}

// CompareFloat compares the operands for the given operation
// it check for the >=, >, <=, <, ==, != operators
func (model Model) CompareFloat() error {
	expectedOutput := model.a
	actualOutput := model.b

	switch model.operator {
	case ">=":
		if !(actualOutput >= expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	case "<=":
		if !(actualOutput <= expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	case ">":
		if !(actualOutput > expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	case "<":
		if !(actualOutput < expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	case "==":
		if !(actualOutput == expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	case "!=":
		if !(actualOutput != expectedOutput) {
			return fmt.Errorf("the probe output didn't match with expected criteria")
		}
	default:
		return fmt.Errorf("criteria '%s' not supported in the probe", model.operator)
	}
	return nil
}
