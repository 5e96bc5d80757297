package redis

import (
	"strconv"
	"strings"
	"time"
)

const (
	// KeyPrefixOTP is the prefix for OTP record hashes
	KeyPrefixOTP = "folio:otp:"
	// KeyPrefixOTPSlot points an (email, action, target) slot at its open record
	KeyPrefixOTPSlot = "folio:otp-slot:"
	// KeyOTPIndex is a sorted set of every OTP id scored by creation time
	KeyOTPIndex = "folio:otps:all"
	// KeyOTPPending is the set of OTP ids still in the issued state
	KeyOTPPending = "folio:otps:pending"

	// KeyPrefixEndorsement is the prefix for endorsement hashes
	KeyPrefixEndorsement = "folio:endorsement:"
	// KeyEndorsementIndex orders every endorsement by insertion
	KeyEndorsementIndex = "folio:endorsements:all"
	// KeyPrefixSkillIndex orders endorsements of one skill by insertion
	KeyPrefixSkillIndex = "folio:endorsements:skill:"
	// KeyEndorsementSeq is the insertion counter used as sorted set score
	KeyEndorsementSeq = "folio:endorsements:seq"

	// KeyPrefixConversation is the prefix for conversation hashes
	KeyPrefixConversation = "folio:conversation:"
	// KeyConversationIndex is a sorted set of conversation ids scored by last update
	KeyConversationIndex = "folio:conversations:updated"

	// KeyLLMModels is the set of model names seen so far
	KeyLLMModels = "folio:llm:models"
	// KeyPrefixLLMModel is the prefix for per-model running totals
	KeyPrefixLLMModel = "folio:llm:model:"
	// KeyLLMLog is a sorted set of per-request usage entries scored by time
	KeyLLMLog = "folio:llm:log"

	// KeyAPICalls is a sorted set of API call records scored by time
	KeyAPICalls = "folio:api:calls"
	// KeyAPIByEndpoint counts calls per endpoint
	KeyAPIByEndpoint = "folio:api:by-endpoint"
	// KeyAPIByStatus counts calls per status code
	KeyAPIByStatus = "folio:api:by-status"

	// KeyExports is a sorted set of export records scored by time
	KeyExports = "folio:exports"
	// KeyContacts is a sorted set of contact submissions scored by time
	KeyContacts = "folio:contacts"
)

// collectionKeys are the index keys that stand for one logical collection each.
var collectionKeys = []string{
	KeyOTPIndex,
	KeyEndorsementIndex,
	KeyConversationIndex,
	KeyLLMModels,
	KeyAPICalls,
	KeyExports,
	KeyContacts,
}

// OTPKey returns the Redis key for an OTP record by ID
func OTPKey(id string) string {
	return KeyPrefixOTP + id
}

// OTPSlotKey returns the key pointing at the open code of a slot
func OTPSlotKey(email, action, targetID string) string {
	return KeyPrefixOTPSlot + strings.Join([]string{email, action, targetID}, "|")
}

// EndorsementKey returns the Redis key for an endorsement by ID
func EndorsementKey(id string) string {
	return KeyPrefixEndorsement + id
}

// SkillIndexKey returns the per-skill ordering key
func SkillIndexKey(skillID string) string {
	return KeyPrefixSkillIndex + skillID
}

// ConversationKey returns the Redis key for a conversation hash
func ConversationKey(id string) string {
	return KeyPrefixConversation + id
}

// ConversationMessagesKey returns the list key holding a conversation's messages
func ConversationMessagesKey(id string) string {
	return KeyPrefixConversation + id + ":messages"
}

// LLMModelKey returns the running-totals hash of a model
func LLMModelKey(model string) string {
	return KeyPrefixLLMModel + model
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreMin(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
