package ledger

import (
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorAuthUnknownParticipant is returned when an operation targets a participant that was never registered.
	ErrorAuthUnknownParticipant = utils.NewChainTrailError("AUTH_UNKNOWN_PARTICIPANT", "participant is not registered")
	// ErrorAuthMissingCapability is returned when admission requires a capability the issuer does not hold.
	ErrorAuthMissingCapability = utils.NewChainTrailError("AUTH_MISSING_CAPABILITY", "participant does not hold the required capability")
	// ErrorAuthRecordAlreadyUsed is returned when a record id has already been admitted once.
	ErrorAuthRecordAlreadyUsed = utils.NewChainTrailError("AUTH_RECORD_ALREADY_USED", "record id has already been admitted")
)

const (
	// DefaultParticipantState is assigned at registration when no initial state is given.
	DefaultParticipantState = "inactive"
	// UnknownParticipantState is reported for ids that were never registered.
	UnknownParticipantState = "unknown"
)

// Authorizer tracks participants, their states, capabilities and metadata,
// and the set of record ids already admitted. It is the chain's admission
// gate, but works standalone too.
//
// An Authorizer does no internal locking: callers must serialize mutating
// calls.
type Authorizer struct {
	participants utils.Set[string]
	states       map[string]string
	capabilities map[string]utils.Set[string]
	metadata     map[string]map[string]string
	usedRecords  utils.Set[string]
	logger       zerolog.Logger
}

// NewAuthorizer returns an empty Authorizer. Logging is off until a chain
// wires its component logger in.
func NewAuthorizer() *Authorizer {
	return &Authorizer{
		participants: utils.Set[string]{},
		states:       map[string]string{},
		capabilities: map[string]utils.Set[string]{},
		metadata:     map[string]map[string]string{},
		usedRecords:  utils.Set[string]{},
		logger:       zerolog.Nop(),
	}
}

// RegisterParticipant adds a participant, or overwrites its state if it is
// already registered. An empty initialState defaults to
// DefaultParticipantState. Non-empty metadata replaces the stored metadata;
// empty metadata leaves it untouched.
func (authorizer *Authorizer) RegisterParticipant(participantID string, initialState string, metadata map[string]string) {
	if initialState == "" {
		initialState = DefaultParticipantState
	}
	authorizer.participants.Add(participantID)
	authorizer.states[participantID] = initialState
	if _, exists := authorizer.capabilities[participantID]; !exists {
		authorizer.capabilities[participantID] = utils.Set[string]{}
	}
	if len(metadata) > 0 {
		stored := make(map[string]string, len(metadata))
		for key, value := range metadata {
			stored[key] = value
		}
		authorizer.metadata[participantID] = stored
	} else if _, exists := authorizer.metadata[participantID]; !exists {
		authorizer.metadata[participantID] = map[string]string{}
	}
	authorizer.logger.Debug().Str("participant", participantID).Str("state", initialState).Msg("Registered participant")
}

func (authorizer *Authorizer) IsParticipantAuthorized(participantID string) bool {
	return authorizer.participants.Has(participantID)
}

// ParticipantState returns the participant's state, or
// UnknownParticipantState if it was never registered.
func (authorizer *Authorizer) ParticipantState(participantID string) string {
	if !authorizer.participants.Has(participantID) {
		return UnknownParticipantState
	}
	return authorizer.states[participantID]
}

func (authorizer *Authorizer) UpdateParticipantState(participantID string, state string) error {
	if !authorizer.participants.Has(participantID) {
		return tracerr.Wrap(ErrorAuthUnknownParticipant.AddDetails(participantID))
	}
	authorizer.states[participantID] = state
	authorizer.logger.Debug().Str("participant", participantID).Str("state", state).Msg("Updated participant state")
	return nil
}

// GrantCapability gives a capability to a registered participant. Granting a
// capability twice is a no-op.
func (authorizer *Authorizer) GrantCapability(participantID string, capability string) error {
	if !authorizer.participants.Has(participantID) {
		return tracerr.Wrap(ErrorAuthUnknownParticipant.AddDetails(participantID))
	}
	authorizer.capabilities[participantID].Add(capability)
	authorizer.logger.Debug().Str("participant", participantID).Str("capability", capability).Msg("Granted capability")
	return nil
}

// RevokeCapability removes a capability from a registered participant.
// Revoking a capability the participant does not hold succeeds silently.
func (authorizer *Authorizer) RevokeCapability(participantID string, capability string) error {
	if !authorizer.participants.Has(participantID) {
		return tracerr.Wrap(ErrorAuthUnknownParticipant.AddDetails(participantID))
	}
	authorizer.capabilities[participantID].Remove(capability)
	authorizer.logger.Debug().Str("participant", participantID).Str("capability", capability).Msg("Revoked capability")
	return nil
}

// HasCapability reports whether the participant holds the capability. It is
// false for unregistered participants.
func (authorizer *Authorizer) HasCapability(participantID string, capability string) bool {
	if !authorizer.participants.Has(participantID) {
		return false
	}
	return authorizer.capabilities[participantID].Has(capability)
}

func (authorizer *Authorizer) SetParticipantMetadata(participantID string, key string, value string) error {
	if !authorizer.participants.Has(participantID) {
		return tracerr.Wrap(ErrorAuthUnknownParticipant.AddDetails(participantID))
	}
	authorizer.metadata[participantID][key] = value
	return nil
}

// ParticipantMetadata returns the stored value, or "" when the participant or
// the key is missing.
func (authorizer *Authorizer) ParticipantMetadata(participantID string, key string) string {
	participantMetadata, exists := authorizer.metadata[participantID]
	if !exists {
		return ""
	}
	return participantMetadata[key]
}

func (authorizer *Authorizer) IsRecordUsed(recordID string) bool {
	return authorizer.usedRecords.Has(recordID)
}

// MarkRecordUsed adds the record id to the consumed set. Nothing ever removes
// ids from it.
func (authorizer *Authorizer) MarkRecordUsed(recordID string) {
	authorizer.usedRecords.Add(recordID)
}

// ValidateAndAdmit is the single admission choke point. It checks, in order:
// that the record id was never admitted before, that the issuer is
// registered, and that the issuer holds the required capability (an empty
// requiredCapability skips that check). Only when all checks pass is the
// record id marked consumed.
func (authorizer *Authorizer) ValidateAndAdmit(issuerID string, recordID string, requiredCapability string) error {
	if authorizer.usedRecords.Has(recordID) {
		authorizer.logger.Warn().Str("record", recordID).Msg("Refusing admission: record id already used")
		return tracerr.Wrap(ErrorAuthRecordAlreadyUsed.AddDetails(recordID))
	}
	if !authorizer.participants.Has(issuerID) {
		authorizer.logger.Warn().Str("issuer", issuerID).Msg("Refusing admission: unknown issuer")
		return tracerr.Wrap(ErrorAuthUnknownParticipant.AddDetails(issuerID))
	}
	if requiredCapability != "" && !authorizer.capabilities[issuerID].Has(requiredCapability) {
		authorizer.logger.Warn().Str("issuer", issuerID).Str("capability", requiredCapability).Msg("Refusing admission: missing capability")
		return tracerr.Wrap(ErrorAuthMissingCapability.AddDetails(issuerID + " / " + requiredCapability))
	}
	authorizer.usedRecords.Add(recordID)
	authorizer.logger.Debug().Str("issuer", issuerID).Str("record", recordID).Msg("Admitted record")
	return nil
}

// Participants returns the registered participant ids, sorted.
func (authorizer *Authorizer) Participants() []string {
	return utils.SortedSlice(authorizer.participants)
}

// Capabilities returns the participant's capabilities, sorted. It is empty
// for unregistered participants.
func (authorizer *Authorizer) Capabilities(participantID string) []string {
	return utils.SortedSlice(authorizer.capabilities[participantID])
}

func (authorizer *Authorizer) setLogger(logger zerolog.Logger) {
	authorizer.logger = logger
}

// AuthorizerState is the serializable snapshot of an Authorizer. Slices are
// sorted so the canonical encodings of two equal authorizers are identical.
type AuthorizerState struct {
	Participants []string                     `json:"participants" bson:"participants"`
	States       map[string]string            `json:"states" bson:"states"`
	Capabilities map[string][]string          `json:"capabilities" bson:"capabilities"`
	Metadata     map[string]map[string]string `json:"metadata" bson:"metadata"`
	UsedRecords  []string                     `json:"used_records" bson:"used_records"`
}

// Snapshot exports the full authorizer state, consumed-record set included,
// so replay protection survives serialization.
func (authorizer *Authorizer) Snapshot() *AuthorizerState {
	state := AuthorizerState{
		Participants: utils.SortedSlice(authorizer.participants),
		States:       map[string]string{},
		Capabilities: map[string][]string{},
		Metadata:     map[string]map[string]string{},
		UsedRecords:  utils.SortedSlice(authorizer.usedRecords),
	}
	for participantID, participantState := range authorizer.states {
		state.States[participantID] = participantState
	}
	for participantID, capabilitySet := range authorizer.capabilities {
		state.Capabilities[participantID] = utils.SortedSlice(capabilitySet)
	}
	for participantID, participantMetadata := range authorizer.metadata {
		metadataCopy := make(map[string]string, len(participantMetadata))
		for key, value := range participantMetadata {
			metadataCopy[key] = value
		}
		state.Metadata[participantID] = metadataCopy
	}
	return &state
}

// NewAuthorizerFromState rebuilds an Authorizer from a snapshot. A nil state
// gives an empty Authorizer.
func NewAuthorizerFromState(state *AuthorizerState) *Authorizer {
	authorizer := NewAuthorizer()
	if state == nil {
		return authorizer
	}
	for _, participantID := range state.Participants {
		authorizer.participants.Add(participantID)
		authorizer.capabilities[participantID] = utils.Set[string]{}
		authorizer.metadata[participantID] = map[string]string{}
	}
	for participantID, participantState := range state.States {
		authorizer.states[participantID] = participantState
	}
	for participantID, capabilityList := range state.Capabilities {
		capabilitySet := utils.Set[string]{}
		for _, capability := range capabilityList {
			capabilitySet.Add(capability)
		}
		authorizer.capabilities[participantID] = capabilitySet
	}
	for participantID, participantMetadata := range state.Metadata {
		metadataCopy := make(map[string]string, len(participantMetadata))
		for key, value := range participantMetadata {
			metadataCopy[key] = value
		}
		authorizer.metadata[participantID] = metadataCopy
	}
	for _, recordID := range state.UsedRecords {
		authorizer.usedRecords.Add(recordID)
	}
	return authorizer
}
