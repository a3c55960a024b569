package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kongstore/internal/catalog"
	"github.com/roach88/kongstore/internal/productspec"
	"github.com/roach88/kongstore/internal/webapi"
)

// Scenario drives a store through a sequence of developer calls and
// notification deliveries, then asserts on what happened.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// AuthToken is the game auth token the API reports.
	// Defaults to DefaultAuthToken.
	AuthToken string `yaml:"auth_token,omitempty"`

	// Ready delivers became_ready before the first step.
	Ready bool `yaml:"ready"`

	// Products declares the products steps may refer to.
	Products []ProductEntry `yaml:"products,omitempty"`

	// ProductSpecs is a directory of CUE product definitions, relative to
	// the scenario file. Its products are appended to Products.
	ProductSpecs string `yaml:"product_specs,omitempty"`

	// Steps run in order, each as its own loop turn.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultAuthToken is used when a scenario does not set auth_token.
const DefaultAuthToken = "test-auth-token"

// ProductEntry declares one product.
type ProductEntry struct {
	ID   string              `yaml:"id"`
	Type catalog.ProductType `yaml:"type"`
}

// Step actions.
const (
	ActionRetrieve = "retrieve"
	ActionPurchase = "purchase"
	ActionFinish   = "finish"
	ActionDeliver  = "deliver"
)

// Step is one scenario step.
type Step struct {
	// Action is retrieve, purchase, finish or deliver.
	Action string `yaml:"action"`

	// Products lists the product ids to retrieve. Empty means every
	// declared product.
	Products []string `yaml:"products,omitempty"`

	// Product is the product to purchase or finish.
	Product string `yaml:"product,omitempty"`

	// TransactionID is passed to finish.
	TransactionID string `yaml:"transaction_id,omitempty"`

	// Kind is the notification kind to deliver, e.g. store_items_received.
	Kind string `yaml:"kind,omitempty"`

	// StoreItems, UserItems and Identifiers are the payload of a delivery.
	StoreItems  []webapi.StoreItem `yaml:"store_items,omitempty"`
	UserItems   []webapi.UserItem  `yaml:"user_items,omitempty"`
	Identifiers []string           `yaml:"identifiers,omitempty"`

	// ExpectError is the error code a retrieve or purchase must be
	// rejected with, e.g. OPERATION_PENDING.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion types.
const (
	AssertOutcome      = "outcome"
	AssertOutcomeCount = "outcome_count"
	AssertRequests     = "requests"
	AssertIdle         = "idle"
)

// Assertion validates the trace or final store state.
type Assertion struct {
	// Type is outcome, outcome_count, requests or idle.
	Type string `yaml:"type"`

	// Status is the outcome status to match (outcome, outcome_count).
	Status string `yaml:"status,omitempty"`

	// Product, TransactionID and Reason narrow an outcome match.
	Product       string `yaml:"product,omitempty"`
	TransactionID string `yaml:"transaction_id,omitempty"`
	Reason        string `yaml:"reason,omitempty"`

	// Products is the exact list of resolved product ids of a
	// products_retrieved outcome. An explicit empty list matches an empty
	// result.
	Products []string `yaml:"products,omitempty"`

	// Count is the expected number of outcomes (outcome_count).
	Count int `yaml:"count,omitempty"`

	// Calls is the exact sequence of outbound requests (requests).
	Calls []string `yaml:"calls,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// ProductSpecs is resolved relative to the scenario file and loaded.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ProductSpecs != "" {
		dir := scenario.ProductSpecs
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		result, errs := productspec.Load(dir)
		if len(errs) > 0 {
			return nil, fmt.Errorf("product specs %s: %w", scenario.ProductSpecs, errs[0])
		}
		for _, def := range result.Definitions() {
			scenario.Products = append(scenario.Products, ProductEntry{ID: def.ID, Type: def.Type})
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// definitions returns the declared products keyed by id, and in order.
func (s *Scenario) definitions() (map[string]catalog.ProductDefinition, []catalog.ProductDefinition) {
	byID := make(map[string]catalog.ProductDefinition, len(s.Products))
	ordered := make([]catalog.ProductDefinition, 0, len(s.Products))
	for _, p := range s.Products {
		def := catalog.ProductDefinition{ID: p.ID, Type: p.Type}
		byID[p.ID] = def
		ordered = append(ordered, def)
	}
	return byID, ordered
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	declared := make(map[string]bool, len(s.Products))
	for i, p := range s.Products {
		if p.ID == "" {
			return fmt.Errorf("products[%d]: id is required", i)
		}
		if !p.Type.Valid() {
			return fmt.Errorf("products[%d]: unknown type %q", i, p.Type)
		}
		if declared[p.ID] {
			return fmt.Errorf("products[%d]: duplicate id %q", i, p.ID)
		}
		declared[p.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, declared); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its action.
func validateStep(index int, step *Step, declared map[string]bool) error {
	switch step.Action {
	case ActionRetrieve:
		for _, id := range step.Products {
			if !declared[id] {
				return fmt.Errorf("steps[%d]: product %q is not declared", index, id)
			}
		}
	case ActionPurchase, ActionFinish:
		if step.Product == "" {
			return fmt.Errorf("steps[%d]: product is required for %s", index, step.Action)
		}
		if !declared[step.Product] {
			return fmt.Errorf("steps[%d]: product %q is not declared", index, step.Product)
		}
	case ActionDeliver:
		if _, err := webapi.ParseKind(step.Kind); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}

	if step.ExpectError != "" && step.Action != ActionRetrieve && step.Action != ActionPurchase {
		return fmt.Errorf("steps[%d]: expect_error only applies to retrieve and purchase", index)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertOutcome:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for outcome", index)
		}
	case AssertOutcomeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outcome_count", index)
		}
	case AssertRequests:
		if a.Calls == nil {
			return fmt.Errorf("assertions[%d]: calls list is required for requests", index)
		}
	case AssertIdle:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
