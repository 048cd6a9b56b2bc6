package flow

import "encoding/json"

// NodeType names one node kind from the flow-graph vocabulary (§4.3).
type NodeType string

const (
	NodeStartTrigger     NodeType = "start_trigger"
	NodeMessage          NodeType = "message"
	NodeImage            NodeType = "image"
	NodeVideo            NodeType = "video"
	NodeDocument         NodeType = "document"
	NodeButton           NodeType = "button"
	NodeList             NodeType = "list"
	NodeFlowRef          NodeType = "flow"
	NodeWait             NodeType = "wait"
	NodeDelay            NodeType = "delay"
	NodeVariable         NodeType = "variable"
	NodeListVariable     NodeType = "list_variable"
	NodeUpdateContact    NodeType = "update_contact"
	NodeMap              NodeType = "map"
	NodeCondition        NodeType = "condition"
	NodeRouter           NodeType = "router"
	NodeKeywordMatch     NodeType = "keyword_match"
	NodeValidator        NodeType = "validator"
	NodePhoneParser      NodeType = "phone_parser"
	NodeBusinessHours    NodeType = "business_hours"
	NodeAPI              NodeType = "api"
	NodeSQL              NodeType = "sql"
	NodeGoogleSheet      NodeType = "google_sheet"
	NodeGoogleSheetQuery NodeType = "google_sheet_query"
	NodeDriveImageLookup NodeType = "drive_image_lookup"
	NodeMediaForward     NodeType = "media_forward"
	NodePayment          NodeType = "payment"
	NodeShopify          NodeType = "shopify"
	NodeWooCommerce      NodeType = "woocommerce"
	NodeSendExternal     NodeType = "send_external"
	NodeCatalogue        NodeType = "catalogue"
	NodeGroupImages      NodeType = "group_images"
	NodeLoop             NodeType = "loop"
	NodeAgent            NodeType = "agent"
	NodeSessionConfig    NodeType = "session_config"
)

// Node is one vertex in a flow graph: an id, a type tag, and a
// type-specific configuration record. Config is always one of the
// `*Config` structs below, matching Type — see UnmarshalJSON.
type Node struct {
	ID     string `json:"id"`
	Type   NodeType `json:"type"`
	Config any    `json:"config"`
}

// Edge connects a node's named output handle to a target node. FromHandle
// is empty for single-output nodes and one of the node's documented handle
// names (e.g. "yes"/"no" for condition, a button id for button) otherwise.
type Edge struct {
	FromNode   string `json:"from_node"`
	FromHandle string `json:"from_handle,omitempty"`
	ToNode     string `json:"to_node"`
}

// --- Config records, one per NodeType ---

// StartTriggerConfig names the keyword set that starts this flow.
// PartialMatch relaxes the comparison from exact (case/whitespace
// insensitive) equality to substring containment (§4.3 "start_trigger").
// An empty Keywords list accepts any inbound text ("catch-all" eligible
// via IsDefault/`*`, see Definition.IsDefault).
type StartTriggerConfig struct {
	Keywords     []string `json:"keywords,omitempty"`
	PartialMatch bool     `json:"partial_match,omitempty"`
}

type MessageConfig struct {
	Text string `json:"text"`
}

type MediaConfig struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// ButtonConfig sends up to three reply buttons and suspends. On resume, the
// reply is matched by id (preferred) or title against Buttons; no match
// re-prompts when RetryOnInvalid is set, else falls through to the
// "default" handle (§4.3 "button").
type ButtonConfig struct {
	Text           string         `json:"text"`
	Buttons        []ButtonOption `json:"buttons"`
	RetryOnInvalid bool           `json:"retry_on_invalid,omitempty"`
}

type ButtonOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListConfig sends an interactive list and suspends. Rows come from one of
// three sources, tried in this order: an array bag variable (SourceVar,
// rendering one row per element from the Row* templates), a Google Sheet
// range, or inline Sections. Rows beyond ListPageSize are
// paginated with synthetic "__next"/"__prev" rows (§4.3 "list").
type ListConfig struct {
	Text       string        `json:"text"`
	ButtonText string        `json:"button_text"`
	Sections   []ListSection `json:"sections,omitempty"`

	// SourceVar, when set, takes precedence over Sections: it names a bag
	// path holding an array, each element bound to "item" (and its index to
	// "index") while interpolating the Row* templates into one row.
	SourceVar        string `json:"source_var,omitempty"`
	RowIDTemplate    string `json:"row_id_template,omitempty"`
	RowTitleTemplate string `json:"row_title_template,omitempty"`
	RowDescTemplate  string `json:"row_description_template,omitempty"`

	// SheetSpreadsheetID, when set and SourceVar is empty, fetches rows from
	// a Google Sheet, mapping the named header columns into a row.
	SheetSpreadsheetID string `json:"sheet_spreadsheet_id,omitempty"`
	SheetSheet         string `json:"sheet_sheet,omitempty"`
	SheetIDColumn      string `json:"sheet_id_column,omitempty"`
	SheetTitleColumn   string `json:"sheet_title_column,omitempty"`
	SheetDescColumn    string `json:"sheet_description_column,omitempty"`

	RetryOnInvalid bool `json:"retry_on_invalid,omitempty"`
}

// ListPageSize caps the number of selectable rows sent per list message;
// beyond it, a synthetic "__next" row is appended (and "__prev" once past
// the first page), so a first or last page carries at most 10 rows and a
// middle page carries 11 (§4.3 "list", E2E "list pagination").
const ListPageSize = 9

type ListSection struct {
	Title string     `json:"title,omitempty"`
	Rows  []ListItem `json:"rows"`
}

type ListItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ToMap renders a row as a plain map, the form it's stored in the bag as
// (so a session round-tripped through JSON storage decodes it the same way
// a freshly-built one does).
func (i ListItem) ToMap() map[string]any {
	m := map[string]any{"id": i.ID, "title": i.Title}
	if i.Description != "" {
		m["description"] = i.Description
	}
	return m
}

// ListItemFromAny reads back a row stored via ToMap (map[string]any, as
// produced by a JSON round trip) or a ListItem set directly within the same
// process.
func ListItemFromAny(v any) (ListItem, bool) {
	switch t := v.(type) {
	case ListItem:
		return t, true
	case map[string]any:
		return ListItem{ID: ToString(t["id"]), Title: ToString(t["title"]), Description: ToString(t["description"])}, true
	default:
		return ListItem{}, false
	}
}

// FlowConfig sends a Meta Flow form — a hosted multi-screen form rendered
// inside WhatsApp — as a "flow" interactive CTA, and suspends until the
// user submits it. On resume the submitted field map merges into the bag
// (§4.3 "flow").
type FlowConfig struct {
	FlowMetaID    string         `json:"flow_meta_id"` // Meta-assigned Flow ID
	CTA           string         `json:"cta"`
	Text          string         `json:"text,omitempty"`
	Mode          string         `json:"mode,omitempty"` // "draft" or "published"; empty means published
	ScreenID      string         `json:"screen_id,omitempty"`
	ActionPayload map[string]any `json:"action_payload,omitempty"`

	// SaveAs, when set, additionally stores the whole submitted field map
	// under this bag variable; fields are always merged individually too.
	SaveAs string `json:"save_as,omitempty"`
}

// WaitConfig suspends the session awaiting the next inbound message;
// execution resumes at this node's outgoing edge on the next webhook event
// for the same (tenant, contact) (§4.3 "suspend/resume"). ExpectedType
// restricts what kind of inbound satisfies the wait — one of {any, text,
// image, video, audio, document, file} — and RetryOnInvalid controls
// whether a mismatch re-prompts (sending an error and staying on this
// node) or is accepted anyway (§4.3 "wait", §8 round-trip law).
type WaitConfig struct {
	SaveAs         string `json:"save_as,omitempty"` // bag variable to store the raw reply text under
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	ExpectedType   string `json:"expected_type,omitempty"`
	RetryOnInvalid bool   `json:"retry_on_invalid,omitempty"`
	ErrorText      string `json:"error_text,omitempty"` // sent on a retried mismatch; defaults to a generic prompt
}

type DelayConfig struct {
	Seconds int `json:"seconds"`
}

// VariableConfig assigns a literal or interpolated value to a bag variable.
type VariableConfig struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ListVariableConfig splits a newline-delimited interpolated value into an
// array variable.
type ListVariableConfig struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type UpdateContactConfig struct {
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	AddLabels   []string `json:"add_labels,omitempty"`
}

// MapConfig renders Template once per element of the Source array variable
// (bound to "item"/"index"), then joins the rendered pieces with Separator
// and stores the result under SaveAs (§4.3 "map": "render a template over
// each element of an array variable, join with separator").
type MapConfig struct {
	Source    string `json:"source"`              // bag path to an array
	Template  string `json:"template"`             // interpolated per element
	Separator string `json:"separator,omitempty"`  // defaults to "" when unset
	SaveAs    string `json:"save_as"`
}

// ConditionConfig evaluates a single boolean expression and branches to the
// "yes" or "no" handle.
type ConditionConfig struct {
	Left     string `json:"left"`
	Operator string `json:"operator"` // eq, neq, gt, gte, lt, lte, contains, exists
	Right    string `json:"right,omitempty"`
}

// RouterConfig evaluates ordered cases and branches to the first matching
// handle, falling through to "default" when none match.
type RouterConfig struct {
	Cases []RouterCase `json:"cases"`
}

type RouterCase struct {
	Handle   string `json:"handle"`
	Left     string `json:"left"`
	Operator string `json:"operator"`
	Right    string `json:"right,omitempty"`
}

// KeywordMatchConfig branches on whether the last inbound text matches one
// of a set of keyword groups, each mapped to a handle.
type KeywordMatchConfig struct {
	Source string              `json:"source"` // bag path holding the text to match, usually the wait reply
	Groups []KeywordMatchGroup `json:"groups"`
}

type KeywordMatchGroup struct {
	Handle      string   `json:"handle"`
	Keywords    []string `json:"keywords"`
	ExactMatch  bool     `json:"exact_match,omitempty"`
}

// ValidatorConfig checks a bag value against a named format and branches to
// "valid"/"invalid".
type ValidatorConfig struct {
	Source string `json:"source"`
	Format string `json:"format"` // email, phone, number, not_empty
}

// PhoneParserConfig normalizes a bag value into E.164 and stores it under
// SaveAs, branching to "ok"/"error".
type PhoneParserConfig struct {
	Source       string `json:"source"`
	DefaultRegion string `json:"default_region,omitempty"`
	SaveAs       string `json:"save_as"`
}

// BusinessHoursConfig branches on whether now falls inside the flow's
// working-hours policy (Definition.WorkingHours), "open" or "closed".
type BusinessHoursConfig struct{}

// APIConfig performs a generic outbound HTTP call and stores the decoded
// JSON response body under SaveAs.
type APIConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	SaveAs  string            `json:"save_as"`
}

// SQLConfig runs a parameterized, tenant-scoped query and stores the result
// rows under SaveAs.
type SQLConfig struct {
	Query  string   `json:"query"`
	Params []string `json:"params,omitempty"` // interpolated bag paths, positional
	SaveAs string   `json:"save_as"`
}

type GoogleSheetConfig struct {
	SpreadsheetID string   `json:"spreadsheet_id"`
	Sheet         string   `json:"sheet"`
	Row           []string `json:"row"` // interpolated values, one per column
}

type GoogleSheetQueryConfig struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Sheet         string `json:"sheet"`
	Column        string `json:"column"`
	Value         string `json:"value"`
	SaveAs        string `json:"save_as"`
}

type DriveImageLookupConfig struct {
	FolderID string `json:"folder_id"`
	FileName string `json:"file_name"`
	SaveAs   string `json:"save_as"`
}

// MediaForwardConfig re-sends a previously received/stored media id/url to
// the contact without requiring a fresh upload.
type MediaForwardConfig struct {
	MediaSource string `json:"media_source"` // bag path to a media id or url
	Caption     string `json:"caption,omitempty"`
}

type PaymentConfig struct {
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	SaveAs   string `json:"save_as"`
}

type ShopifyConfig struct {
	Operation string `json:"operation"` // lookup_order, lookup_product
	Query     string `json:"query"`
	SaveAs    string `json:"save_as"`
}

type WooCommerceConfig struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
	SaveAs    string `json:"save_as"`
}

// SendExternalConfig forwards the current conversation context to a
// third-party webhook (e.g. a human-handoff queue) without altering flow
// position.
type SendExternalConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

type CatalogueConfig struct {
	CatalogID string `json:"catalog_id"`
	Text      string `json:"text,omitempty"`
}

// GroupImagesConfig sends a sequence of media URLs as consecutive image
// messages; there is no batched album send.
type GroupImagesConfig struct {
	URLs    []string `json:"urls"`
	Caption string   `json:"caption,omitempty"`
}

// LoopConfig iterates a bag array, running the body subgraph (reached via
// the "body" handle) once per item with ItemVar/IndexVar bound,
// then continues via "done" when exhausted (§4.3 edge case "loop cap").
type LoopConfig struct {
	Source   string `json:"source"`
	ItemVar  string `json:"item_var"`
	IndexVar string `json:"index_var,omitempty"`
	MaxIters int    `json:"max_iters,omitempty"`
}

// AgentConfig hands the conversation to a human agent and is terminal: the
// interpreter sends HandoffMessage (if set), flips the conversation to
// human-handled, and deletes the session — there is no resume, unlike
// wait/button/list/flow (§4.3 "agent": "Terminal").
type AgentConfig struct {
	Prompt         string `json:"prompt,omitempty"`
	HandoffMessage string `json:"handoff_message,omitempty"`
}

// SessionConfigConfig overrides the session timeout for the remainder of
// this session; it does not change the working-hours policy.
type SessionConfigConfig struct {
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`
}

var configConstructors = map[NodeType]func() any{
	NodeStartTrigger:     func() any { return &StartTriggerConfig{} },
	NodeMessage:          func() any { return &MessageConfig{} },
	NodeImage:            func() any { return &MediaConfig{} },
	NodeVideo:            func() any { return &MediaConfig{} },
	NodeDocument:         func() any { return &MediaConfig{} },
	NodeButton:           func() any { return &ButtonConfig{} },
	NodeList:             func() any { return &ListConfig{} },
	NodeFlowRef:          func() any { return &FlowConfig{} },
	NodeWait:             func() any { return &WaitConfig{} },
	NodeDelay:            func() any { return &DelayConfig{} },
	NodeVariable:         func() any { return &VariableConfig{} },
	NodeListVariable:     func() any { return &ListVariableConfig{} },
	NodeUpdateContact:    func() any { return &UpdateContactConfig{} },
	NodeMap:              func() any { return &MapConfig{} },
	NodeCondition:        func() any { return &ConditionConfig{} },
	NodeRouter:           func() any { return &RouterConfig{} },
	NodeKeywordMatch:     func() any { return &KeywordMatchConfig{} },
	NodeValidator:        func() any { return &ValidatorConfig{} },
	NodePhoneParser:      func() any { return &PhoneParserConfig{} },
	NodeBusinessHours:    func() any { return &BusinessHoursConfig{} },
	NodeAPI:              func() any { return &APIConfig{} },
	NodeSQL:              func() any { return &SQLConfig{} },
	NodeGoogleSheet:      func() any { return &GoogleSheetConfig{} },
	NodeGoogleSheetQuery: func() any { return &GoogleSheetQueryConfig{} },
	NodeDriveImageLookup: func() any { return &DriveImageLookupConfig{} },
	NodeMediaForward:     func() any { return &MediaForwardConfig{} },
	NodePayment:          func() any { return &PaymentConfig{} },
	NodeShopify:          func() any { return &ShopifyConfig{} },
	NodeWooCommerce:      func() any { return &WooCommerceConfig{} },
	NodeSendExternal:     func() any { return &SendExternalConfig{} },
	NodeCatalogue:        func() any { return &CatalogueConfig{} },
	NodeGroupImages:      func() any { return &GroupImagesConfig{} },
	NodeLoop:             func() any { return &LoopConfig{} },
	NodeAgent:            func() any { return &AgentConfig{} },
	NodeSessionConfig:    func() any { return &SessionConfigConfig{} },
}

type nodeEnvelope struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes a node by first reading its type tag, then
// unmarshaling Config into the matching concrete struct.
func (n *Node) UnmarshalJSON(data []byte) error {
	var env nodeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	ctor, ok := configConstructors[env.Type]
	if !ok {
		return &UnknownNodeTypeError{Type: env.Type}
	}
	cfg := ctor()
	if len(env.Config) > 0 {
		if err := json.Unmarshal(env.Config, cfg); err != nil {
			return err
		}
	}
	n.ID = env.ID
	n.Type = env.Type
	n.Config = cfg
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	cfgRaw, err := json.Marshal(n.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{ID: n.ID, Type: n.Type, Config: cfgRaw})
}

// UnknownNodeTypeError is returned when a flow definition references a node
// type this build doesn't know how to execute.
type UnknownNodeTypeError struct {
	Type NodeType
}

func (e *UnknownNodeTypeError) Error() string {
	return "flow: unknown node type " + string(e.Type)
}
