// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telegram

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat is a private chat, group, supergroup or channel.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// ChatInviteLink is an invite link created by the bot.
type ChatInviteLink struct {
	InviteLink         string `json:"invite_link"`
	Name               string `json:"name,omitempty"`
	CreatesJoinRequest bool   `json:"creates_join_request"`
	IsPrimary          bool   `json:"is_primary"`
	IsRevoked          bool   `json:"is_revoked"`
	ExpireDate         int64  `json:"expire_date,omitempty"`
}

// ChatJoinRequest is delivered when a user asks to join through a
// creates_join_request link.
type ChatJoinRequest struct {
	Chat       Chat            `json:"chat"`
	From       User            `json:"from"`
	UserChatID int64           `json:"user_chat_id"`
	Date       int64           `json:"date"`
	InviteLink *ChatInviteLink `json:"invite_link,omitempty"`
}

// Message is the subset of a Telegram message the bot reads.
type Message struct {
	MessageID      int64  `json:"message_id"`
	From           *User  `json:"from,omitempty"`
	Chat           Chat   `json:"chat"`
	Date           int64  `json:"date"`
	Text           string `json:"text,omitempty"`
	NewChatMembers []User `json:"new_chat_members,omitempty"`
	LeftChatMember *User  `json:"left_chat_member,omitempty"`
}

// ChatMemberUpdated reports a membership change in a channel.
type ChatMemberUpdated struct {
	Chat          Chat       `json:"chat"`
	From          User       `json:"from"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}

// Update is one item returned by getUpdates.
type Update struct {
	UpdateID        int64              `json:"update_id"`
	Message         *Message           `json:"message,omitempty"`
	ChannelPost     *Message           `json:"channel_post,omitempty"`
	ChatJoinRequest *ChatJoinRequest   `json:"chat_join_request,omitempty"`
	ChatMember      *ChatMemberUpdated `json:"chat_member,omitempty"`
}

// Member statuses returned by getChatMember.
const (
	MemberCreator       = "creator"
	MemberAdministrator = "administrator"
	MemberMember        = "member"
	MemberRestricted    = "restricted"
	MemberLeft          = "left"
	MemberKicked        = "kicked"
)

// ChatMember describes a user's membership in a chat.
type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}

// IsAdmin reports whether the member can administer the chat.
func (m ChatMember) IsAdmin() bool {
	return m.Status == MemberCreator || m.Status == MemberAdministrator
}

// InviteLinkOptions are the createChatInviteLink parameters the service sets.
type InviteLinkOptions struct {
	Name               string
	ExpireDate         int64 // unix seconds, 0 for none
	CreatesJoinRequest bool
}
