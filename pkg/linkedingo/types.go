package linkedingo

import (
	"encoding/json"
	"fmt"

	"go.mau.fi/util/jsontime"
)

// The Voyager API wraps polymorphic values in objects keyed by their Java
// class name. Unknown fields are always ignored: this surface is
// reverse-engineered and LinkedIn adds fields without notice.

type Artifact struct {
	Height                        int                `json:"height,omitempty"`
	Width                         int                `json:"width,omitempty"`
	FileIdentifyingURLPathSegment string             `json:"fileIdentifyingUrlPathSegment,omitempty"`
	ExpiresAt                     jsontime.UnixMilli `json:"expiresAt,omitempty"`
}

type VectorImage struct {
	Artifacts []Artifact `json:"artifacts,omitempty"`
	RootURL   string     `json:"rootUrl,omitempty"`
}

type Picture struct {
	VectorImage *VectorImage `json:"com.linkedin.common.VectorImage,omitempty"`
}

type MiniProfile struct {
	EntityURN        URN      `json:"entityUrn,omitempty"`
	PublicIdentifier string   `json:"publicIdentifier,omitempty"`
	FirstName        string   `json:"firstName,omitempty"`
	LastName         string   `json:"lastName,omitempty"`
	Occupation       string   `json:"occupation,omitempty"`
	Memorialized     bool     `json:"memorialized,omitempty"`
	ObjectURN        URN      `json:"objectUrn,omitempty"`
	Picture          *Picture `json:"picture,omitempty"`
}

type MessagingMember struct {
	EntityURN      URN          `json:"entityUrn,omitempty"`
	MiniProfile    *MiniProfile `json:"miniProfile,omitempty"`
	AlternateName  string       `json:"alternateName,omitempty"`
	AlternateImage *Picture     `json:"alternateImage,omitempty"`
}

type Paging struct {
	Count int `json:"count,omitempty"`
	Start int `json:"start,omitempty"`
}

type TextEntity struct {
	URN URN `json:"urn,omitempty"`
}

type AttributeType struct {
	TextEntity *TextEntity `json:"com.linkedin.pemberly.text.Entity,omitempty"`
}

type Attribute struct {
	Start  int            `json:"start"`
	Length int            `json:"length"`
	Type   *AttributeType `json:"type,omitempty"`
}

// MentionURN returns the mentioned profile URN, or an empty URN if this
// attribute is not a mention.
func (a Attribute) MentionURN() URN {
	if a.Type == nil || a.Type.TextEntity == nil {
		return URN{}
	}
	return a.Type.TextEntity.URN
}

func NewMentionAttribute(start, length int, urn URN) Attribute {
	return Attribute{
		Start:  start,
		Length: length,
		Type:   &AttributeType{TextEntity: &TextEntity{URN: urn}},
	}
}

type AttributedBody struct {
	Text       string      `json:"text"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

type MessageAttachmentCreate struct {
	ByteSize  int    `json:"byteSize,omitempty"`
	ID        URN    `json:"id,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Name      string `json:"name,omitempty"`
}

type MessageAttachmentReference struct {
	String string `json:"string,omitempty"`
}

type MessageAttachment struct {
	ID        URN                         `json:"id,omitempty"`
	ByteSize  int                         `json:"byteSize,omitempty"`
	MediaType string                      `json:"mediaType,omitempty"`
	Name      string                      `json:"name,omitempty"`
	Reference *MessageAttachmentReference `json:"reference,omitempty"`
}

type AudioMetadata struct {
	URN      URN    `json:"urn,omitempty"`
	Duration int    `json:"duration,omitempty"`
	URL      string `json:"url,omitempty"`
}

type MediaAttachment struct {
	MediaType     string         `json:"mediaType,omitempty"`
	AudioMetadata *AudioMetadata `json:"audioMetadata,omitempty"`
}

type GifInfo struct {
	OriginalHeight int    `json:"originalHeight,omitempty"`
	OriginalWidth  int    `json:"originalWidth,omitempty"`
	URL            string `json:"url,omitempty"`
}

type ThirdPartyMediaInfo struct {
	PreviewGif *GifInfo `json:"previewgif,omitempty"`
	NanoGif    *GifInfo `json:"nanogif,omitempty"`
	Gif        *GifInfo `json:"gif,omitempty"`
}

type ThirdPartyMedia struct {
	MediaType string               `json:"mediaType,omitempty"`
	ID        string               `json:"id,omitempty"`
	Media     *ThirdPartyMediaInfo `json:"media,omitempty"`
	Title     string               `json:"title,omitempty"`
}

const MediaTypeTenorGIF = "TENOR_GIF"

type LegalText struct {
	StaticLegalText string `json:"staticLegalText,omitempty"`
	CustomLegalText string `json:"customLegalText,omitempty"`
}

type SpInmailStandardSubContent struct {
	Action     string `json:"action,omitempty"`
	ActionText string `json:"actionText,omitempty"`
}

type SpInmailSubContent struct {
	Standard *SpInmailStandardSubContent `json:"com.linkedin.voyager.messaging.event.message.spinmail.SpInmailStandardSubContent,omitempty"`
}

type SpInmailContent struct {
	Status          string              `json:"status,omitempty"`
	SpInmailType    string              `json:"spInmailType,omitempty"`
	AdvertiserLabel string              `json:"advertiserLabel,omitempty"`
	Body            string              `json:"body,omitempty"`
	LegalText       *LegalText          `json:"legalText,omitempty"`
	SubContent      *SpInmailSubContent `json:"subContent,omitempty"`
}

type ConversationNameUpdateContent struct {
	NewName string `json:"newName,omitempty"`
}

type MessageCustomContent struct {
	ConversationNameUpdate *ConversationNameUpdateContent `json:"com.linkedin.voyager.messaging.event.message.ConversationNameUpdateContent,omitempty"`
	SpInmailContent        *SpInmailContent               `json:"com.linkedin.voyager.messaging.event.message.spinmail.SpInmailContent,omitempty"`
	ThirdPartyMedia        *ThirdPartyMedia               `json:"com.linkedin.voyager.messaging.shared.ThirdPartyMedia,omitempty"`
}

type CommentaryText struct {
	Text string `json:"text,omitempty"`
}

type Commentary struct {
	Text *CommentaryText `json:"text,omitempty"`
}

type NavigationContext struct {
	TrackingActionType string `json:"trackingActionType,omitempty"`
	ActionTarget       string `json:"actionTarget,omitempty"`
}

type ArticleComponent struct {
	NavigationContext *NavigationContext `json:"navigationContext,omitempty"`
}

type ImageAttributes struct {
	VectorImage *VectorImage `json:"vectorImage,omitempty"`
}

type Image struct {
	Attributes []ImageAttributes `json:"attributes,omitempty"`
}

type ImageComponent struct {
	Images []Image `json:"images,omitempty"`
}

type FeedDocument struct {
	TranscribedDocumentURL string `json:"transcribedDocumentUrl,omitempty"`
}

type DocumentComponent struct {
	Document *FeedDocument `json:"document,omitempty"`
}

type StreamLocation struct {
	URL       string `json:"url,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

type ProgressiveStream struct {
	Width              int              `json:"width,omitempty"`
	Height             int              `json:"height,omitempty"`
	Size               int              `json:"size,omitempty"`
	MediaType          string           `json:"mediaType,omitempty"`
	StreamingLocations []StreamLocation `json:"streamingLocations,omitempty"`
}

type VideoPlayMetadata struct {
	ProgressiveStreams []ProgressiveStream `json:"progressiveStreams,omitempty"`
}

type VideoComponent struct {
	VideoPlayMetadata *VideoPlayMetadata `json:"videoPlayMetadata,omitempty"`
}

type ArticleContent struct {
	ImageComponent    *ImageComponent    `json:"com.linkedin.voyager.feed.render.ImageComponent,omitempty"`
	VideoComponent    *VideoComponent    `json:"com.linkedin.voyager.feed.render.LinkedInVideoComponent,omitempty"`
	DocumentComponent *DocumentComponent `json:"com.linkedin.voyager.feed.render.DocumentComponent,omitempty"`
	ArticleComponent  *ArticleComponent  `json:"com.linkedin.voyager.feed.render.ArticleComponent,omitempty"`
}

type ActorName struct {
	Text string `json:"text,omitempty"`
}

type Actor struct {
	Name *ActorName `json:"name,omitempty"`
}

type FeedUpdate struct {
	Actor      *Actor          `json:"actor,omitempty"`
	Commentary *Commentary     `json:"commentary,omitempty"`
	Content    *ArticleContent `json:"content,omitempty"`
}

type MessageEvent struct {
	Body                    string                `json:"body,omitempty"`
	FeedUpdate              *FeedUpdate           `json:"feedUpdate,omitempty"`
	MessageBodyRenderFormat string                `json:"messageBodyRenderFormat,omitempty"`
	Subject                 string                `json:"subject,omitempty"`
	RecalledAt              jsontime.UnixMilli    `json:"recalledAt,omitempty"`
	LastEditedAt            jsontime.UnixMilli    `json:"lastEditedAt,omitempty"`
	AttributedBody          *AttributedBody       `json:"attributedBody,omitempty"`
	Attachments             []MessageAttachment   `json:"attachments,omitempty"`
	MediaAttachments        []MediaAttachment     `json:"mediaAttachments,omitempty"`
	CustomContent           *MessageCustomContent `json:"customContent,omitempty"`
}

type EventContent struct {
	MessageEvent *MessageEvent `json:"com.linkedin.voyager.messaging.event.MessageEvent,omitempty"`
}

type ReactionSummary struct {
	Count          int                `json:"count,omitempty"`
	FirstReactedAt jsontime.UnixMilli `json:"firstReactedAt,omitempty"`
	Emoji          string             `json:"emoji,omitempty"`
	ViewerReacted  bool               `json:"viewerReacted,omitempty"`
}

type ConversationEvent struct {
	CreatedAt                   jsontime.UnixMilli `json:"createdAt,omitempty"`
	EntityURN                   URN                `json:"entityUrn,omitempty"`
	EventContent                *EventContent      `json:"eventContent,omitempty"`
	Subtype                     string             `json:"subtype,omitempty"`
	From                        *Participant       `json:"from,omitempty"`
	PreviousEventInConversation URN                `json:"previousEventInConversation,omitempty"`
	ReactionSummaries           []ReactionSummary  `json:"reactionSummaries,omitempty"`
}

// Sender returns the mini profile of the event sender, if present.
func (ce *ConversationEvent) Sender() *MiniProfile {
	if ce == nil || ce.From == nil || ce.From.MessagingMember == nil {
		return nil
	}
	return ce.From.MessagingMember.MiniProfile
}

func (ce *ConversationEvent) MessageEvent() *MessageEvent {
	if ce == nil || ce.EventContent == nil {
		return nil
	}
	return ce.EventContent.MessageEvent
}

type Participant struct {
	MessagingMember *MessagingMember `json:"com.linkedin.voyager.messaging.MessagingMember,omitempty"`
}

func (p *Participant) MemberURN() URN {
	if p == nil || p.MessagingMember == nil || p.MessagingMember.MiniProfile == nil {
		return URN{}
	}
	return p.MessagingMember.MiniProfile.EntityURN
}

type Conversation struct {
	GroupChat       bool                `json:"groupChat,omitempty"`
	TotalEventCount int                 `json:"totalEventCount,omitempty"`
	UnreadCount     int                 `json:"unreadCount,omitempty"`
	Read            *bool               `json:"read,omitempty"`
	LastActivityAt  jsontime.UnixMilli  `json:"lastActivityAt,omitempty"`
	EntityURN       URN                 `json:"entityUrn,omitempty"`
	Name            string              `json:"name,omitempty"`
	Muted           bool                `json:"muted,omitempty"`
	Events          []ConversationEvent `json:"events,omitempty"`
	Participants    []Participant       `json:"participants,omitempty"`
}

type ConversationsResponse struct {
	Elements []Conversation `json:"elements,omitempty"`
	Paging   *Paging        `json:"paging,omitempty"`
}

type ConversationEventsResponse struct {
	Elements []ConversationEvent `json:"elements,omitempty"`
	Paging   *Paging             `json:"paging,omitempty"`
}

type MessageCreate struct {
	AttributedBody *AttributedBody           `json:"attributedBody,omitempty"`
	Body           string                    `json:"body,omitempty"`
	Attachments    []MessageAttachmentCreate `json:"attachments,omitempty"`
}

type MessageCreatedInfo struct {
	CreatedAt              jsontime.UnixMilli `json:"createdAt,omitempty"`
	EventURN               URN                `json:"eventUrn,omitempty"`
	BackendEventURN        URN                `json:"backendEventUrn,omitempty"`
	ConversationURN        URN                `json:"conversationUrn,omitempty"`
	BackendConversationURN URN                `json:"backendConversationUrn,omitempty"`
}

type SendMessageResponse struct {
	Value *MessageCreatedInfo `json:"value,omitempty"`
}

type UserProfileResponse struct {
	PlainID     string       `json:"plainId,omitempty"`
	MiniProfile *MiniProfile `json:"miniProfile,omitempty"`
}

type SeenReceipt struct {
	EventURN URN                `json:"eventUrn,omitempty"`
	SeenAt   jsontime.UnixMilli `json:"seenAt,omitempty"`
}

// RealTimeEvent is the union payload of a DecoratedEvent frame. Which group
// of fields is populated determines the event kind; listeners subscribe by
// field name.
type RealTimeEvent struct {
	// Action events (e.g. a conversation marked read)
	Action       string          `json:"action,omitempty"`
	Conversation json.RawMessage `json:"conversation,omitempty"`

	// Message events
	PreviousEventInConversation URN                `json:"previousEventInConversation,omitempty"`
	Event                       *ConversationEvent `json:"event,omitempty"`

	// Reaction events
	ReactionAdded       *bool            `json:"reactionAdded,omitempty"`
	ActorMiniProfileURN URN              `json:"actorMiniProfileUrn,omitempty"`
	EventURN            URN              `json:"eventUrn,omitempty"`
	ReactionSummary     *ReactionSummary `json:"reactionSummary,omitempty"`

	// Seen receipt and typing events
	FromEntity  URN          `json:"fromEntity,omitempty"`
	SeenReceipt *SeenReceipt `json:"seenReceipt,omitempty"`
}

// DecodeConversation decodes the polymorphic conversation field, which is
// either a full conversation object or a bare URN string.
func (e *RealTimeEvent) DecodeConversation() (*Conversation, URN, error) {
	if len(e.Conversation) == 0 {
		return nil, URN{}, nil
	}
	if e.Conversation[0] == '"' {
		var urn URN
		err := json.Unmarshal(e.Conversation, &urn)
		return nil, urn, err
	}
	var conv Conversation
	err := json.Unmarshal(e.Conversation, &conv)
	return &conv, conv.EntityURN, err
}

type ReactorProfile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	EntityURN URN    `json:"entityUrn,omitempty"`
}

type Reactor struct {
	ReactorURN URN             `json:"reactorUrn,omitempty"`
	Reactor    *ReactorProfile `json:"reactor,omitempty"`
}

type ReactorsResponse struct {
	Elements []Reactor `json:"elements,omitempty"`
	Paging   *Paging   `json:"paging,omitempty"`
}

// APIError is a decoded non-2xx Voyager response.
type APIError struct {
	StatusCode int    `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
