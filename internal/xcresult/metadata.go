package xcresult

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActionsInvocationRecord is the root object of `xcresulttool get`. Only the
// fields needed to find coverage archives are modelled.
type ActionsInvocationRecord struct {
	Actions Values[ActionRecord] `json:"actions"`
}

type ActionRecord struct {
	SchemeCommandName Value[string] `json:"schemeCommandName"`
	TestPlanName      Value[string] `json:"testPlanName"`
	ActionResult      ActionResult  `json:"actionResult"`
}

type ActionResult struct {
	Coverage CodeCoverageInfo `json:"coverage"`
	TestsRef *Reference       `json:"testsRef"`
}

type CodeCoverageInfo struct {
	HasCoverageData Value[bool] `json:"hasCoverageData"`
	ReportRef       *Reference  `json:"reportRef"`
	ArchiveRef      *Reference  `json:"archiveRef"`
}

// Reference identifies an exportable object inside the bundle.
type Reference struct {
	ID Value[string] `json:"id"`
}

func (r *Reference) id() (string, bool) {
	if r == nil || !r.ID.Valid || r.ID.V == "" {
		return "", false
	}
	return r.ID.V, true
}

// CoverageArchiveID returns the reference of the action's coverage archive.
func (a ActionRecord) CoverageArchiveID() (string, bool) {
	return a.ActionResult.Coverage.ArchiveRef.id()
}

// HasCoverageData reports whether any action recorded coverage.
func (r ActionsInvocationRecord) HasCoverageData() bool {
	for _, a := range r.Actions.Items {
		cov := a.ActionResult.Coverage
		if cov.HasCoverageData.V {
			return true
		}
		if _, ok := cov.ArchiveRef.id(); ok {
			return true
		}
	}
	return false
}

func ParseActionsInvocationRecord(b []byte) (ActionsInvocationRecord, error) {
	var rec ActionsInvocationRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return ActionsInvocationRecord{}, fmt.Errorf("parse xcresult json: %w", err)
	}
	return rec, nil
}

// ReadActionsInvocationRecord runs `xcresulttool get --format json` on bundle.
func ReadActionsInvocationRecord(ctx context.Context, tc Toolchain, bundle string) (ActionsInvocationRecord, error) {
	out := tc.run(ctx, tc.getObjectCmd(bundle))
	if err := ctx.Err(); err != nil {
		return ActionsInvocationRecord{}, err
	}
	if !out.Success() {
		return ActionsInvocationRecord{}, toolError("cannot read result bundle "+bundle, out)
	}
	rec, err := ParseActionsInvocationRecord(out.Stdout)
	if err != nil {
		return ActionsInvocationRecord{}, &ConversionError{Message: "cannot read result bundle " + bundle, Err: err}
	}
	return rec, nil
}
