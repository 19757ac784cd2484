package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/chat"
	"teamchat/internal/model"
)

type SendMessageRequest struct {
	DestinationID string   `json:"destination_id" validate:"required,uuid"`
	Content       string   `json:"content" validate:"max=4000"`
	ContentType   string   `json:"content_type" validate:"omitempty,oneof=TEXT IMAGE FILE"`
	Mentions      []string `json:"mentions" validate:"omitempty,max=50,dive,uuid"`
}

// toSendRequest assumes the request passed validation.
func (r SendMessageRequest) toSendRequest() chat.SendRequest {
	req := chat.SendRequest{
		DestinationID: uuid.MustParse(r.DestinationID),
		Content:       r.Content,
		ContentType:   model.ContentType(r.ContentType),
	}
	for _, id := range r.Mentions {
		req.MentionIDs = append(req.MentionIDs, uuid.MustParse(id))
	}
	return req
}

type SenderResponse struct {
	Kind      string    `json:"kind"`
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Name      string    `json:"name,omitempty"`
}

type MentionResponse struct {
	Kind      string    `json:"kind"`
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Name      string    `json:"name,omitempty"`
}

type HistoryItemResponse struct {
	ID          uuid.UUID         `json:"id"`
	Sender      SenderResponse    `json:"sender"`
	ReceiverID  uuid.UUID         `json:"receiver_id"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Mode        string            `json:"delivery_mode"`
	CreatedAt   time.Time         `json:"created_at"`
	Unseen      bool              `json:"unseen"`
	Mentions    []MentionResponse `json:"mentions"`
}

type ChannelResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type PreviewResponse struct {
	Mode           string            `json:"delivery_mode"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	Peer           *SenderResponse   `json:"peer,omitempty"`
	Channel        *ChannelResponse  `json:"channel,omitempty"`
	MessageID      uuid.UUID         `json:"message_id"`
	SenderID       uuid.UUID         `json:"sender_id"`
	Content        string            `json:"content"`
	ContentType    string            `json:"content_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Unseen         bool              `json:"unseen"`
	Mentions       []MentionResponse `json:"mentions"`
}

func renderSender(s model.Sender) SenderResponse {
	switch v := s.(type) {
	case model.UserSender:
		return SenderResponse{Kind: "user", ID: v.ID, Username: v.Username, FirstName: v.FirstName, LastName: v.LastName}
	case model.BotSender:
		return SenderResponse{Kind: "bot", ID: v.ID, Name: v.Name}
	default:
		panic(fmt.Sprintf("api: unhandled sender type %T", s))
	}
}

func renderMention(m model.ResolvedMention) MentionResponse {
	switch v := m.(type) {
	case model.UserMention:
		return MentionResponse{Kind: string(model.MentionUser), ID: v.ID, Username: v.Username, FirstName: v.FirstName, LastName: v.LastName}
	case model.ChannelMention:
		return MentionResponse{Kind: string(model.MentionChannel), ID: v.ID, Name: v.Name}
	case model.BotMention:
		return MentionResponse{Kind: string(model.MentionBot), ID: v.ID, Name: v.Name}
	default:
		panic(fmt.Sprintf("api: unhandled mention type %T", m))
	}
}

func renderMentions(ms []model.ResolvedMention) []MentionResponse {
	out := make([]MentionResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, renderMention(m))
	}
	return out
}

func renderHistoryItem(it chat.HistoryItem) HistoryItemResponse {
	return HistoryItemResponse{
		ID:          it.Message.ID,
		Sender:      renderSender(it.Sender),
		ReceiverID:  it.Message.ReceiverID,
		Content:     it.Content,
		ContentType: string(it.Message.ContentType),
		Mode:        string(it.Message.DeliveryMode),
		CreatedAt:   it.Message.CreatedAt,
		Unseen:      it.Unseen,
		Mentions:    renderMentions(it.Mentions),
	}
}

func renderPreview(p chat.Preview) PreviewResponse {
	resp := PreviewResponse{
		Mode:           string(p.Mode),
		ConversationID: p.ConversationID,
		MessageID:      p.Message.ID,
		SenderID:       p.Message.SenderID,
		Content:        p.Content,
		ContentType:    string(p.Message.ContentType),
		CreatedAt:      p.Message.CreatedAt,
		Unseen:         p.Unseen,
		Mentions:       renderMentions(p.Mentions),
	}
	if p.Peer != nil {
		peer := renderSender(p.Peer)
		resp.Peer = &peer
	}
	if p.Channel != nil {
		resp.Channel = &ChannelResponse{ID: p.Channel.ID, Name: p.Channel.Name}
	}
	return resp
}
