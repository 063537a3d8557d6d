// linkedin-matrix - A Matrix-LinkedIn puppeting bridge.
// Copyright (C) 2024 Sumner Evans
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/crypto/attachment"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type convertedMessagePart struct {
	content *event.MessageEventContent
	extra   map[string]interface{}
}

// convertLinkedInMessage converts one LinkedIn message into an ordered list of
// Matrix event contents: subject, file attachments, voice messages,
// third-party media, the text body, and finally any shared post.
func (portal *Portal) convertLinkedInMessage(ctx context.Context, source *User, intent *appservice.IntentAPI, msg *linkedingo.MessageEvent) []*convertedMessagePart {
	var parts []*convertedMessagePart

	if msg.Subject != "" {
		parts = append(parts, &convertedMessagePart{
			content: &event.MessageEventContent{
				MsgType: event.MsgText,
				Body:    msg.Subject,
			},
		})
	}

	for i := range msg.Attachments {
		part := portal.convertLinkedInAttachment(ctx, source, intent, &msg.Attachments[i])
		if part != nil {
			parts = append(parts, part)
		}
	}

	for i := range msg.MediaAttachments {
		part := portal.convertLinkedInMediaAttachment(ctx, source, intent, &msg.MediaAttachments[i])
		if part != nil {
			parts = append(parts, part)
		}
	}

	if msg.CustomContent != nil && msg.CustomContent.ThirdPartyMedia != nil {
		part := portal.convertThirdPartyMedia(ctx, source, intent, msg.CustomContent.ThirdPartyMedia)
		if part != nil {
			parts = append(parts, part)
		}
	}

	if msg.CustomContent != nil && msg.CustomContent.SpInmailContent != nil {
		parts = append(parts, convertSpInmail(msg.CustomContent.SpInmailContent))
	} else if bodyPart := portal.convertLinkedInBody(msg); bodyPart != nil {
		parts = append(parts, bodyPart)
	}

	if msg.FeedUpdate != nil {
		parts = append(parts, portal.convertFeedUpdate(ctx, source, intent, msg.FeedUpdate)...)
	}

	return parts
}

func (portal *Portal) convertLinkedInBody(msg *linkedingo.MessageEvent) *convertedMessagePart {
	var body linkedingo.AttributedBody
	if msg.AttributedBody != nil {
		body = *msg.AttributedBody
	} else if msg.Body != "" {
		body = linkedingo.AttributedBody{Text: msg.Body}
	} else {
		return nil
	}

	msgType := event.MsgText
	if inner, isEmote := parseEmote(body); isEmote {
		body = inner
		msgType = event.MsgEmote
	}

	content := portal.bridge.linkedInToMatrix(body)
	content.MsgType = msgType
	return &convertedMessagePart{content: content}
}

func convertSpInmail(inmail *linkedingo.SpInmailContent) *convertedMessagePart {
	var sb strings.Builder
	if inmail.AdvertiserLabel != "" {
		sb.WriteString(inmail.AdvertiserLabel)
		sb.WriteString("\n\n")
	}
	sb.WriteString(inmail.Body)
	if inmail.SubContent != nil && inmail.SubContent.Standard != nil {
		sub := inmail.SubContent.Standard
		if sub.ActionText != "" && sub.Action != "" {
			sb.WriteString(fmt.Sprintf("\n\n%s: %s", sub.ActionText, sub.Action))
		}
	}
	if inmail.LegalText != nil && inmail.LegalText.StaticLegalText != "" {
		sb.WriteString("\n\n")
		sb.WriteString(inmail.LegalText.StaticLegalText)
	}
	return &convertedMessagePart{
		content: &event.MessageEventContent{
			MsgType: event.MsgNotice,
			Body:    sb.String(),
		},
	}
}

func (portal *Portal) convertLinkedInAttachment(ctx context.Context, source *User, intent *appservice.IntentAPI, att *linkedingo.MessageAttachment) *convertedMessagePart {
	log := zerolog.Ctx(ctx)
	if att.Reference == nil || att.Reference.String == "" {
		log.Warn().Str("attachment", att.Name).Msg("Attachment has no download reference")
		return nil
	}
	data, err := source.Client.DownloadMedia(ctx, att.Reference.String)
	if err != nil {
		log.Err(err).Str("attachment", att.Name).Msg("Failed to download attachment")
		return nil
	}

	content := &event.MessageEventContent{
		Body: att.Name,
		Info: &event.FileInfo{MimeType: att.MediaType},
	}
	switch {
	case strings.HasPrefix(att.MediaType, "image/"):
		content.MsgType = event.MsgImage
	case strings.HasPrefix(att.MediaType, "video/"):
		content.MsgType = event.MsgVideo
	case strings.HasPrefix(att.MediaType, "audio/"):
		content.MsgType = event.MsgAudio
	default:
		content.MsgType = event.MsgFile
	}
	if content.Body == "" {
		content.Body = strings.TrimPrefix(string(content.MsgType), "m.")
	}

	if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
		log.Err(err).Str("attachment", att.Name).Msg("Failed to reupload attachment")
		return nil
	}
	return &convertedMessagePart{content: content}
}

func (portal *Portal) convertLinkedInMediaAttachment(ctx context.Context, source *User, intent *appservice.IntentAPI, att *linkedingo.MediaAttachment) *convertedMessagePart {
	log := zerolog.Ctx(ctx)
	if att.MediaType != "AUDIO" || att.AudioMetadata == nil || att.AudioMetadata.URL == "" {
		log.Debug().Str("media_type", att.MediaType).Msg("Ignoring unsupported media attachment")
		return nil
	}
	data, err := source.Client.DownloadMedia(ctx, att.AudioMetadata.URL)
	if err != nil {
		log.Err(err).Msg("Failed to download voice message")
		return nil
	}

	content := &event.MessageEventContent{
		MsgType: event.MsgAudio,
		Body:    "Voice message",
		Info: &event.FileInfo{
			Duration: att.AudioMetadata.Duration,
		},
	}
	if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
		log.Err(err).Msg("Failed to reupload voice message")
		return nil
	}
	return &convertedMessagePart{
		content: content,
		extra: map[string]interface{}{
			"org.matrix.msc1767.audio": map[string]interface{}{
				"duration": att.AudioMetadata.Duration,
			},
			"org.matrix.msc3245.voice": map[string]interface{}{},
		},
	}
}

func (portal *Portal) convertThirdPartyMedia(ctx context.Context, source *User, intent *appservice.IntentAPI, media *linkedingo.ThirdPartyMedia) *convertedMessagePart {
	log := zerolog.Ctx(ctx)
	if media.MediaType != linkedingo.MediaTypeTenorGIF || media.Media == nil || media.Media.Gif == nil {
		log.Debug().Str("media_type", media.MediaType).Msg("Ignoring unsupported third party media")
		return nil
	}
	gif := media.Media.Gif
	data, err := source.Client.DownloadMedia(ctx, gif.URL)
	if err != nil {
		log.Err(err).Msg("Failed to download GIF")
		return nil
	}

	body := media.Title
	if body == "" {
		body = "GIF"
	}
	content := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    body,
		Info: &event.FileInfo{
			MimeType: "image/gif",
			Width:    gif.OriginalWidth,
			Height:   gif.OriginalHeight,
		},
	}
	if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
		log.Err(err).Msg("Failed to reupload GIF")
		return nil
	}
	return &convertedMessagePart{content: content}
}

// convertFeedUpdate renders a shared post as a text part with the post link,
// followed by the post's media if it has any.
func (portal *Portal) convertFeedUpdate(ctx context.Context, source *User, intent *appservice.IntentAPI, update *linkedingo.FeedUpdate) []*convertedMessagePart {
	log := zerolog.Ctx(ctx)
	var sb strings.Builder
	sb.WriteString("Shared a post")
	if update.Actor != nil && update.Actor.Name != nil && update.Actor.Name.Text != "" {
		sb.WriteString(" by ")
		sb.WriteString(update.Actor.Name.Text)
	}
	if update.Commentary != nil && update.Commentary.Text != nil && update.Commentary.Text.Text != "" {
		sb.WriteString(":\n\n")
		sb.WriteString(update.Commentary.Text.Text)
	}
	if update.Content != nil && update.Content.ArticleComponent != nil &&
		update.Content.ArticleComponent.NavigationContext != nil &&
		update.Content.ArticleComponent.NavigationContext.ActionTarget != "" {
		sb.WriteString("\n\n")
		sb.WriteString(update.Content.ArticleComponent.NavigationContext.ActionTarget)
	}
	parts := []*convertedMessagePart{{
		content: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    sb.String(),
		},
	}}

	if update.Content == nil {
		return parts
	}
	switch {
	case update.Content.ImageComponent != nil:
		for i := range update.Content.ImageComponent.Images {
			img := &update.Content.ImageComponent.Images[i]
			if len(img.Attributes) == 0 || img.Attributes[0].VectorImage == nil {
				continue
			}
			data, err := source.Client.DownloadProfilePicture(ctx, &linkedingo.Picture{
				VectorImage: img.Attributes[0].VectorImage,
			})
			if err != nil {
				log.Err(err).Msg("Failed to download post image")
				continue
			}
			content := &event.MessageEventContent{MsgType: event.MsgImage, Body: "image"}
			if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
				log.Err(err).Msg("Failed to reupload post image")
				continue
			}
			parts = append(parts, &convertedMessagePart{content: content})
		}
	case update.Content.VideoComponent != nil && update.Content.VideoComponent.VideoPlayMetadata != nil:
		streams := update.Content.VideoComponent.VideoPlayMetadata.ProgressiveStreams
		if len(streams) == 0 || len(streams[0].StreamingLocations) == 0 {
			break
		}
		stream := streams[0]
		data, err := source.Client.DownloadMedia(ctx, stream.StreamingLocations[0].URL)
		if err != nil {
			log.Err(err).Msg("Failed to download post video")
			break
		}
		content := &event.MessageEventContent{
			MsgType: event.MsgVideo,
			Body:    "video",
			Info: &event.FileInfo{
				MimeType: stream.MediaType,
				Width:    stream.Width,
				Height:   stream.Height,
			},
		}
		if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
			log.Err(err).Msg("Failed to reupload post video")
			break
		}
		parts = append(parts, &convertedMessagePart{content: content})
	case update.Content.DocumentComponent != nil && update.Content.DocumentComponent.Document != nil:
		doc := update.Content.DocumentComponent.Document
		if doc.TranscribedDocumentURL == "" {
			break
		}
		data, err := source.Client.DownloadMedia(ctx, doc.TranscribedDocumentURL)
		if err != nil {
			log.Err(err).Msg("Failed to download post document")
			break
		}
		content := &event.MessageEventContent{MsgType: event.MsgFile, Body: "document"}
		if err = portal.uploadMatrixMedia(ctx, intent, data, content); err != nil {
			log.Err(err).Msg("Failed to reupload post document")
			break
		}
		parts = append(parts, &convertedMessagePart{content: content})
	}
	return parts
}

// uploadMatrixMedia uploads data to the homeserver and fills in the content's
// URL or encrypted file details, encrypting first in encrypted portals.
func (portal *Portal) uploadMatrixMedia(ctx context.Context, intent *appservice.IntentAPI, data []byte, content *event.MessageEventContent) error {
	if content.Info == nil {
		content.Info = &event.FileInfo{}
	}
	if content.Info.MimeType == "" {
		content.Info.MimeType = mimetype.Detect(data).String()
	}
	content.Info.Size = len(data)

	uploadMime := content.Info.MimeType
	var file *event.EncryptedFileInfo
	if portal.Encrypted {
		file = &event.EncryptedFileInfo{EncryptedFile: *attachment.NewEncryptedFile()}
		file.EncryptInPlace(data)
		uploadMime = "application/octet-stream"
	}

	req := mautrix.ReqUploadMedia{ContentBytes: data, ContentType: uploadMime}
	var mxc id.ContentURI
	if portal.bridge.Config.Homeserver.AsyncMedia {
		uploaded, err := intent.UploadAsync(ctx, req)
		if err != nil {
			return err
		}
		mxc = uploaded.ContentURI
	} else {
		uploaded, err := intent.UploadMedia(ctx, req)
		if err != nil {
			return err
		}
		mxc = uploaded.ContentURI
	}

	if file != nil {
		file.URL = mxc.CUString()
		content.File = file
	} else {
		content.URL = mxc.CUString()
	}
	return nil
}

// Matrix to LinkedIn

func (portal *Portal) convertMatrixMessage(ctx context.Context, sender *User, content *event.MessageEventContent, evt *event.Event) (*linkedingo.MessageCreate, error) {
	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
		body := portal.bridge.matrixToLinkedIn(ctx, content)
		return &linkedingo.MessageCreate{AttributedBody: &body}, nil
	case event.MsgEmote:
		body := portal.bridge.matrixToLinkedIn(ctx, content)
		senderName := portal.senderDisplayname(sender)
		emote := formatEmote(senderName, sender.LIMemberURN, body)
		return &linkedingo.MessageCreate{AttributedBody: &emote}, nil
	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		data, err := portal.downloadMatrixMedia(ctx, content)
		if err != nil {
			return nil, err
		}
		mime := ""
		if content.Info != nil {
			mime = content.Info.MimeType
		}
		if mime == "" {
			mime = mimetype.Detect(data).String()
		}
		att, err := sender.Client.UploadMedia(ctx, data, content.Body, mime)
		if err != nil {
			return nil, fmt.Errorf("failed to upload media to LinkedIn: %w", err)
		}
		return &linkedingo.MessageCreate{
			Attachments: []linkedingo.MessageAttachmentCreate{*att},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported message type %s", content.MsgType)
	}
}

func (portal *Portal) senderDisplayname(sender *User) string {
	if puppet := portal.bridge.GetPuppetByURN(sender.LIMemberURN); puppet != nil && puppet.Name != "" {
		return puppet.Name
	}
	return string(sender.MXID)
}

func (portal *Portal) downloadMatrixMedia(ctx context.Context, content *event.MessageEventContent) ([]byte, error) {
	var file *event.EncryptedFileInfo
	rawMXC := content.URL
	if content.File != nil {
		file = content.File
		rawMXC = file.URL
	}
	mxc, err := rawMXC.Parse()
	if err != nil {
		return nil, fmt.Errorf("malformed media URL: %w", err)
	}
	data, err := portal.MainIntent().DownloadBytes(ctx, mxc)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	if file != nil {
		err = file.DecryptInPlace(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt media: %w", err)
		}
	}
	return data, nil
}
