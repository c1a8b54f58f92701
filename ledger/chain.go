package ledger

import (
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/merkle"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
	"io"
	"os"
	"time"
)

var (
	// ErrorChainSignerRequired is returned when creating a chain without a Signer.
	ErrorChainSignerRequired = utils.NewChainTrailError("CHAIN_SIGNER_REQUIRED", "a Signer is required to create a chain")
	// ErrorChainGenesisRecordRequired is returned when creating a chain without a genesis record id.
	ErrorChainGenesisRecordRequired = utils.NewChainTrailError("CHAIN_GENESIS_RECORD_REQUIRED", "a genesis record id is required")
	// ErrorChainInvalidPriority is returned when the genesis record priority is out of range.
	ErrorChainInvalidPriority = utils.NewChainTrailError("CHAIN_INVALID_PRIORITY", "record priority must be between 0 and 255")
	// ErrorChainAppendNilBlock is returned when appending a nil candidate.
	ErrorChainAppendNilBlock = utils.NewChainTrailError("CHAIN_APPEND_NIL_BLOCK", "cannot append a nil block")
	// ErrorChainAppendDuplicateRecord is returned when a candidate carries a record id that was already admitted, or the same id twice.
	ErrorChainAppendDuplicateRecord = utils.NewChainTrailError("CHAIN_APPEND_DUPLICATE_RECORD", "a record id was already admitted into this chain")
	// ErrorChainAppendInvalidBlock is returned when the re-linked candidate fails validation.
	ErrorChainAppendInvalidBlock = utils.NewChainTrailError("CHAIN_APPEND_INVALID_BLOCK", "candidate block failed validation")
	// ErrorChainEmpty is returned when an operation needs at least one block.
	ErrorChainEmpty = utils.NewChainTrailError("CHAIN_EMPTY", "chain has no blocks")
	// ErrorChainBlockIndexOutOfRange is returned when accessing a block index outside the chain.
	ErrorChainBlockIndexOutOfRange = utils.NewChainTrailError("CHAIN_BLOCK_INDEX_OUT_OF_RANGE", "block index out of range")
	// ErrorChainRestoreNilState is returned when restoring a chain from a nil snapshot.
	ErrorChainRestoreNilState = utils.NewChainTrailError("CHAIN_RESTORE_NIL_STATE", "cannot restore a chain from a nil state")
)

// ChainOptions is the options object for creating or restoring a Chain.
type ChainOptions struct {
	// ChainID identifies the chain in logs and serialized form. Defaults to a random hex identifier. Ignored when restoring: a restored chain keeps its serialized id.
	ChainID string
	// Hasher is the hash algorithm used for Merkle leaves, internal nodes and block content hashes. Defaults to merkle.DefaultHasher. A chain uses exactly one hash algorithm for its whole life.
	Hasher merkle.Hasher
	// LogLevel is the minimum level of logs you want. All logs of this level or above will be displayed. Use one of the zerolog level constants.
	LogLevel zerolog.Level
	// LogNoColor should be set to true if you want to disable colors in the log output.
	LogNoColor bool
	// InstanceName is an arbitrary name to give to this chain instance. Can be useful for debugging when multiple instances are running in parallel, as it is added to logs.
	InstanceName string
	// LogWriter is the io.Writer to which to write the logs. Defaults to os.Stdout.
	LogWriter io.Writer
}

// Chain is an append-only, hash-linked sequence of blocks: each block's
// PreviousHash is the content hash of its predecessor, and the first block
// carries the genesis sentinel. Records enter through Append, which admits a
// candidate block entirely or not at all.
//
// A Chain does no internal locking: callers must serialize mutating calls.
type Chain[T Payload] struct {
	id         string
	createdAt  Timestamp
	blocks     []*Block[T]
	authorizer *Authorizer
	hasher     merkle.Hasher
	logger     zerolog.Logger
}

func newInstanceLogger(options *ChainOptions) zerolog.Logger {
	if options.LogWriter == nil {
		options.LogWriter = os.Stdout
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	instanceLogger := zerolog.New(zerolog.ConsoleWriter{Out: options.LogWriter, TimeFormat: time.StampMilli, NoColor: options.LogNoColor}).With().Timestamp().Logger()
	instanceLogger = instanceLogger.Level(options.LogLevel)
	if options.InstanceName != "" {
		instanceLogger = instanceLogger.With().Str("instance", options.InstanceName).Logger()
	}
	return instanceLogger
}

// NewChain creates a chain with its genesis block: a single record with the
// given id, payload and priority, signed by the signer. The genesis record id
// is marked consumed immediately, as no record id may appear twice anywhere
// in one chain.
func NewChain[T Payload](options *ChainOptions, genesisRecordID string, genesisPayload T, genesisPriority int, signer Signer) (*Chain[T], error) {
	if options == nil {
		options = &ChainOptions{}
	}
	if signer == nil {
		return nil, tracerr.Wrap(ErrorChainSignerRequired)
	}
	if genesisRecordID == "" {
		return nil, tracerr.Wrap(ErrorChainGenesisRecordRequired)
	}
	if genesisPriority < 0 || genesisPriority > 255 {
		return nil, tracerr.Wrap(ErrorChainInvalidPriority)
	}

	instanceLogger := newInstanceLogger(options)
	instanceLogger.Debug().Msg("Creating new chain...")

	chainID := options.ChainID
	if chainID == "" {
		generated, err := utils.GenerateRandomString(16)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		chainID = generated
	}
	hasher := options.Hasher
	if hasher == nil {
		hasher = merkle.DefaultHasher
	}

	genesisRecord := NewRecord[T](genesisRecordID, genesisPayload, genesisPriority)
	err := genesisRecord.Sign(signer)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	genesisBlock, err := NewBlock[T]([]*Record[T]{genesisRecord})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	err = genesisBlock.relink(0, GenesisPreviousHash, hasher)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	chain := Chain[T]{
		id:         chainID,
		createdAt:  Now(),
		blocks:     []*Block[T]{genesisBlock},
		authorizer: NewAuthorizer(),
		hasher:     hasher,
		logger:     instanceLogger,
	}
	chain.authorizer.setLogger(instanceLogger.With().Str("component", "authorizer").Logger())
	chain.authorizer.MarkRecordUsed(genesisRecordID)

	chain.logger.Info().Str("chain", chainID).Str("genesis", genesisBlock.ContentHash).Msg("Chain created")
	return &chain, nil
}

// Append admits a candidate block entirely or not at all. It works on a clone
// of the candidate, so the caller's block is never mutated. Checks run in
// order: no record id of the candidate may have been admitted before (and the
// candidate may not repeat an id internally), then the clone is re-linked to
// the tail and must pass validation. Only then are the record ids marked
// consumed and the clone appended. A rejected candidate leaves the chain
// byte-for-byte unchanged.
//
// Blocks with zero records are accepted.
func (chain *Chain[T]) Append(candidate *Block[T]) error {
	if candidate == nil {
		return tracerr.Wrap(ErrorChainAppendNilBlock)
	}

	recordIDs := make([]string, len(candidate.Records))
	for i, record := range candidate.Records {
		recordIDs[i] = record.ID
	}
	err := utils.CheckSliceUnique(recordIDs)
	if err != nil {
		chain.logger.Warn().Msg("Rejecting block: candidate repeats a record id")
		return tracerr.Wrap(ErrorChainAppendDuplicateRecord.AddDetails("candidate repeats a record id"))
	}
	for _, recordID := range recordIDs {
		if chain.authorizer.IsRecordUsed(recordID) {
			chain.logger.Warn().Str("record", recordID).Msg("Rejecting block: record id already used")
			return tracerr.Wrap(ErrorChainAppendDuplicateRecord.AddDetails(recordID))
		}
	}

	tail, err := chain.LastBlock()
	if err != nil {
		return tracerr.Wrap(err)
	}

	admitted := candidate.clone()
	err = admitted.relink(tail.Index+1, tail.ContentHash, chain.hasher)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if !admitted.IsValid() {
		chain.logger.Warn().Int64("index", admitted.Index).Msg("Rejecting block: validation failed")
		return tracerr.Wrap(ErrorChainAppendInvalidBlock)
	}

	for _, recordID := range recordIDs {
		chain.authorizer.MarkRecordUsed(recordID)
	}
	chain.blocks = append(chain.blocks, admitted)
	chain.logger.Debug().Int64("index", admitted.Index).Int("records", len(admitted.Records)).Str("hash", admitted.ContentHash).Msg("Block appended")
	return nil
}

// AppendRecord builds, signs and appends a single-record block.
func (chain *Chain[T]) AppendRecord(recordID string, payload T, priority int, signer Signer) error {
	record := NewRecord[T](recordID, payload, priority)
	err := record.Sign(signer)
	if err != nil {
		return tracerr.Wrap(err)
	}
	block, err := NewBlock[T]([]*Record[T]{record})
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = chain.Append(block)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// IsValid walks the whole chain: every block must pass its own validation,
// indexes must run 0..n-1, the first block must carry the genesis sentinel,
// and every block's PreviousHash must equal its predecessor's ContentHash.
// An empty chain is invalid.
func (chain *Chain[T]) IsValid() bool {
	if len(chain.blocks) == 0 {
		return false
	}
	for i, block := range chain.blocks {
		if !block.IsValid() {
			return false
		}
		if block.Index != int64(i) {
			return false
		}
		if i == 0 {
			if block.PreviousHash != GenesisPreviousHash {
				return false
			}
			continue
		}
		if block.PreviousHash != chain.blocks[i-1].ContentHash {
			return false
		}
	}
	return true
}

func (chain *Chain[T]) ID() string {
	return chain.id
}

func (chain *Chain[T]) CreatedAt() Timestamp {
	return chain.createdAt
}

func (chain *Chain[T]) Length() int {
	return len(chain.blocks)
}

func (chain *Chain[T]) Block(index int) (*Block[T], error) {
	if index < 0 || index >= len(chain.blocks) {
		return nil, tracerr.Wrap(ErrorChainBlockIndexOutOfRange.AddDetails(fmt.Sprintf("%d", index)))
	}
	return chain.blocks[index], nil
}

func (chain *Chain[T]) LastBlock() (*Block[T], error) {
	if len(chain.blocks) == 0 {
		return nil, tracerr.Wrap(ErrorChainEmpty)
	}
	return chain.blocks[len(chain.blocks)-1], nil
}

// Blocks returns a copy of the block slice. The blocks themselves are shared:
// treat them as read-only.
func (chain *Chain[T]) Blocks() []*Block[T] {
	blocks := make([]*Block[T], len(chain.blocks))
	copy(blocks, chain.blocks)
	return blocks
}

func (chain *Chain[T]) Authorizer() *Authorizer {
	return chain.authorizer
}

// Authorizer facades. The chain embeds its admission state, and these
// delegate so callers do not have to reach through Authorizer().

func (chain *Chain[T]) RegisterParticipant(participantID string, initialState string, metadata map[string]string) {
	chain.authorizer.RegisterParticipant(participantID, initialState, metadata)
}

func (chain *Chain[T]) IsParticipantAuthorized(participantID string) bool {
	return chain.authorizer.IsParticipantAuthorized(participantID)
}

func (chain *Chain[T]) ParticipantState(participantID string) string {
	return chain.authorizer.ParticipantState(participantID)
}

func (chain *Chain[T]) UpdateParticipantState(participantID string, state string) error {
	return chain.authorizer.UpdateParticipantState(participantID, state)
}

func (chain *Chain[T]) GrantCapability(participantID string, capability string) error {
	return chain.authorizer.GrantCapability(participantID, capability)
}

func (chain *Chain[T]) RevokeCapability(participantID string, capability string) error {
	return chain.authorizer.RevokeCapability(participantID, capability)
}

func (chain *Chain[T]) HasCapability(participantID string, capability string) bool {
	return chain.authorizer.HasCapability(participantID, capability)
}

func (chain *Chain[T]) SetParticipantMetadata(participantID string, key string, value string) error {
	return chain.authorizer.SetParticipantMetadata(participantID, key, value)
}

func (chain *Chain[T]) ParticipantMetadata(participantID string, key string) string {
	return chain.authorizer.ParticipantMetadata(participantID, key)
}

func (chain *Chain[T]) IsRecordUsed(recordID string) bool {
	return chain.authorizer.IsRecordUsed(recordID)
}

func (chain *Chain[T]) ValidateAndAdmit(issuerID string, recordID string, requiredCapability string) error {
	return chain.authorizer.ValidateAndAdmit(issuerID, recordID, requiredCapability)
}

// ExecuteCommand admits a record for a command: the issuer must hold the
// capability named by the command itself.
func (chain *Chain[T]) ExecuteCommand(issuerID string, command string, recordID string) error {
	err := chain.authorizer.ValidateAndAdmit(issuerID, recordID, command)
	if err != nil {
		return tracerr.Wrap(err)
	}
	chain.logger.Debug().Str("issuer", issuerID).Str("command", command).Str("record", recordID).Msg("Executed command")
	return nil
}

// ChainSummary is a human-oriented snapshot of a chain's shape.
type ChainSummary struct {
	ChainID     string
	Blocks      int
	Records     int
	Valid       bool
	GenesisHash string
	HeadHash    string
}

func (chain *Chain[T]) Summary() ChainSummary {
	summary := ChainSummary{
		ChainID: chain.id,
		Blocks:  len(chain.blocks),
		Valid:   chain.IsValid(),
	}
	for _, block := range chain.blocks {
		summary.Records += len(block.Records)
	}
	if len(chain.blocks) > 0 {
		summary.GenesisHash = chain.blocks[0].ContentHash
		summary.HeadHash = chain.blocks[len(chain.blocks)-1].ContentHash
	}
	return summary
}

// LogSummary writes the chain summary through the instance logger.
func (chain *Chain[T]) LogSummary() {
	summary := chain.Summary()
	chain.logger.Info().
		Str("chain", summary.ChainID).
		Int("blocks", summary.Blocks).
		Int("records", summary.Records).
		Bool("valid", summary.Valid).
		Str("head", summary.HeadHash).
		Msg("Chain summary")
}

// ChainState is the serializable snapshot of a Chain, consumed by the codec
// layer.
type ChainState[T Payload] struct {
	ID         string           `json:"id" bson:"id"`
	CreatedAt  Timestamp        `json:"created_at" bson:"created_at"`
	Blocks     []*Block[T]      `json:"blocks" bson:"blocks"`
	Authorizer *AuthorizerState `json:"authorizer" bson:"authorizer"`
}

// Snapshot exports the chain's full state: blocks with their hashes and
// signatures verbatim, plus the authorizer state.
func (chain *Chain[T]) Snapshot() *ChainState[T] {
	blocks := make([]*Block[T], len(chain.blocks))
	for i, block := range chain.blocks {
		blocks[i] = block.clone()
	}
	return &ChainState[T]{
		ID:         chain.id,
		CreatedAt:  chain.createdAt,
		Blocks:     blocks,
		Authorizer: chain.authorizer.Snapshot(),
	}
}

// RestoreChain rebuilds a Chain from a decoded snapshot. Hashes, roots and
// signatures are restored verbatim and nothing is validated: run IsValid
// afterwards to check what was loaded. The snapshot's chain id wins over
// options.ChainID.
func RestoreChain[T Payload](state *ChainState[T], options *ChainOptions) (*Chain[T], error) {
	if state == nil {
		return nil, tracerr.Wrap(ErrorChainRestoreNilState)
	}
	if options == nil {
		options = &ChainOptions{}
	}
	instanceLogger := newInstanceLogger(options)
	hasher := options.Hasher
	if hasher == nil {
		hasher = merkle.DefaultHasher
	}

	blocks := make([]*Block[T], len(state.Blocks))
	for i, block := range state.Blocks {
		restored := block.clone()
		restored.hasher = hasher
		blocks[i] = restored
	}
	chain := Chain[T]{
		id:         state.ID,
		createdAt:  state.CreatedAt,
		blocks:     blocks,
		authorizer: NewAuthorizerFromState(state.Authorizer),
		hasher:     hasher,
		logger:     instanceLogger,
	}
	chain.authorizer.setLogger(instanceLogger.With().Str("component", "authorizer").Logger())
	chain.logger.Debug().Str("chain", chain.id).Int("blocks", len(blocks)).Msg("Chain restored")
	return &chain, nil
}
