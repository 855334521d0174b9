// Package discord holds the Discord send helpers shared by the bot channel.
package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// MessageSender is the part of *discordgo.Session used for sending.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// SendMessageNoEmbed sends content to a channel with link previews
// suppressed, splitting it across messages when it exceeds the size limit.
func SendMessageNoEmbed(s MessageSender, channelID, content string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	var sent []*discordgo.Message
	for _, chunk := range SplitMessage(WrapURLsNoEmbed(content), SafeChunkLen) {
		msg, err := SendComplexMessageNoEmbed(s, channelID, &discordgo.MessageSend{Content: chunk}, options...)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}

// SendComplexMessageNoEmbed sends a payload after wrapping its URLs and
// setting the suppress-embeds flag.
func SendComplexMessageNoEmbed(s MessageSender, channelID string, msg *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if msg == nil {
		return nil, errors.New("discord: message payload cannot be nil")
	}
	msg.Content = WrapURLsNoEmbed(msg.Content)
	msg.Flags |= discordgo.MessageFlagsSuppressEmbeds
	msg.AllowedMentions = &discordgo.MessageAllowedMentions{}
	return s.ChannelMessageSendComplex(channelID, msg, options...)
}
