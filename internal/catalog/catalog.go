// Package catalog maps actuator command codes to their human-readable
// descriptions and the synthetic responses shown when no device is connected.
package catalog

// Code is a single-character actuator command code.
type Code string

const (
	// CodeRaiseElevator raises the elevator.
	CodeRaiseElevator Code = "A"
	// CodeLowerElevator lowers the elevator.
	CodeLowerElevator Code = "B"
	// CodeStop halts all movement. The emergency trigger always issues this code.
	CodeStop Code = "C"
	// CodeRaisePlatform raises the platform.
	CodeRaisePlatform Code = "D"
	// CodeLowerPlatform lowers the platform.
	CodeLowerPlatform Code = "E"
)

// Outcome classifies a command response for log records.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// Entry describes one command code.
type Entry struct {
	// Description is the operator-facing action name.
	Description string
	// Response is the synthetic response text used when the command is
	// simulated (no connected device) or locally echoed.
	Response string
	// Outcome classifies the synthetic response.
	Outcome Outcome
}

var entries = map[Code]Entry{
	CodeRaiseElevator: {Description: "RAISE ELEVATOR", Response: "Elevator rising...", Outcome: OutcomeSuccess},
	CodeLowerElevator: {Description: "LOWER ELEVATOR", Response: "Elevator descending...", Outcome: OutcomeSuccess},
	CodeStop:          {Description: "STOP SYSTEM", Response: "Elevator stopped", Outcome: OutcomeWarning},
	CodeRaisePlatform: {Description: "RAISE PLATFORM", Response: "Platform rising...", Outcome: OutcomeSuccess},
	CodeLowerPlatform: {Description: "LOWER PLATFORM", Response: "Platform descending...", Outcome: OutcomeSuccess},
}

// EmergencyCode is the code issued by the emergency trigger regardless of any
// prior state. It maps to the stop command.
const EmergencyCode = CodeStop

// Known reports whether code is part of the catalog.
func Known(code Code) bool {
	_, ok := entries[code]
	return ok
}

// Codes returns all known codes in catalog order.
func Codes() []Code {
	return []Code{CodeRaiseElevator, CodeLowerElevator, CodeStop, CodeRaisePlatform, CodeLowerPlatform}
}

// Describe returns the human-readable description for a code. Unknown codes
// are echoed back unchanged so callers never lose the raw code.
func Describe(code Code) string {
	if e, ok := entries[code]; ok {
		return e.Description
	}
	return string(code)
}

// Lookup returns the catalog entry for a code. Unknown codes yield a generic
// acknowledgement so simulation never fails.
func Lookup(code Code) Entry {
	if e, ok := entries[code]; ok {
		return e
	}
	return Entry{
		Description: string(code),
		Response:    "Command acknowledged",
		Outcome:     OutcomeSuccess,
	}
}
