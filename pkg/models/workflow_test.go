package models

import (
	"encoding/json"
	"testing"
)

func sampleWorkflow() *Workflow {
	return &Workflow{
		Blocks: []Block{
			{BlockID: "B001", Name: "Start", ActionCode: "Start"},
			{
				BlockID:    "B002",
				Name:       "Export HCM Config",
				ActionCode: "ExportConfigurations",
				Inputs:     []Input{{Name: "Module", StaticValue: "HCM"}},
				Outputs:    []Output{{Name: "ConfigFile", OutputVariableName: "op-B002-ConfigFile"}},
			},
		},
		Edges: []Edge{{EdgeID: "E001", From: "B001", To: "B002"}},
	}
}

func TestValidateStructureOK(t *testing.T) {
	wf := sampleWorkflow()
	if errs := wf.ValidateStructure(); len(errs) != 0 {
		t.Errorf("ValidateStructure() = %v, want no errors", errs)
	}
}

func TestValidateStructureEmpty(t *testing.T) {
	wf := &Workflow{}
	errs := wf.ValidateStructure()
	if len(errs) != 1 {
		t.Fatalf("ValidateStructure() returned %d errors, want 1", len(errs))
	}
	if errs[0] != "workflow has no blocks" {
		t.Errorf("unexpected error: %q", errs[0])
	}
}

func TestValidateStructureDuplicatesAndDangling(t *testing.T) {
	wf := sampleWorkflow()
	wf.Blocks = append(wf.Blocks, Block{BlockID: "B002", Name: "Dup", ActionCode: "ImportData"})
	wf.Edges = append(wf.Edges, Edge{EdgeID: "E002", From: "B002", To: "B999"})

	errs := wf.ValidateStructure()
	if len(errs) != 2 {
		t.Fatalf("ValidateStructure() returned %d errors, want 2: %v", len(errs), errs)
	}
}

func TestValidateStructureRequiresStartBlock(t *testing.T) {
	wf := sampleWorkflow()
	wf.Blocks = wf.Blocks[1:] // drop the Start block
	wf.Edges = nil

	errs := wf.ValidateStructure()
	found := false
	for _, e := range errs {
		if e == "workflow must have a Start block" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing Start not reported: %v", errs)
	}

	wf = sampleWorkflow()
	wf.Blocks = append(wf.Blocks, Block{BlockID: "B003", Name: "Start Again", ActionCode: "Start"})
	errs = wf.ValidateStructure()
	found = false
	for _, e := range errs {
		if e == "workflow must have exactly one Start block" {
			found = true
		}
	}
	if !found {
		t.Errorf("duplicate Start not reported: %v", errs)
	}
}

func TestValidateStructureChecksOutputReferences(t *testing.T) {
	wf := sampleWorkflow()
	wf.Blocks = append(wf.Blocks, Block{
		BlockID:    "B003",
		Name:       "Import",
		ActionCode: "ImportData",
		Inputs:     []Input{{Name: "DataFile", ReferencedOutputVariableName: "op-B999-DoesNotExist"}},
	})
	wf.Edges = append(wf.Edges, Edge{EdgeID: "E002", From: "B002", To: "B003"})

	errs := wf.ValidateStructure()
	if len(errs) != 1 || errs[0] != "block B003 references non-existent output: op-B999-DoesNotExist" {
		t.Errorf("ValidateStructure() = %v", errs)
	}

	// Fixing the reference to a declared output clears the error.
	wf.Blocks[2].Inputs[0].ReferencedOutputVariableName = "op-B002-ConfigFile"
	if errs := wf.ValidateStructure(); len(errs) != 0 {
		t.Errorf("resolved reference still rejected: %v", errs)
	}
}

func TestOutputVariableName(t *testing.T) {
	got := OutputVariableName("B003", "Config File")
	if got != "op-B003-ConfigFile" {
		t.Errorf("OutputVariableName() = %q, want op-B003-ConfigFile", got)
	}
}

func TestWorkflowJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(sampleWorkflow())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["workflow_json"]; !ok {
		t.Error("serialized workflow missing workflow_json key")
	}
	if _, ok := raw["edges"]; !ok {
		t.Error("serialized workflow missing edges key")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	wf := sampleWorkflow()
	cp := wf.Clone()
	cp.Blocks[1].Inputs[0].StaticValue = "Financials"
	cp.Edges[0].To = "B003"

	if wf.Blocks[1].Inputs[0].StaticValue != "HCM" {
		t.Error("clone mutation leaked into original block inputs")
	}
	if wf.Edges[0].To != "B002" {
		t.Error("clone mutation leaked into original edges")
	}
}
