// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single mention",
			text: "please continue @backend",
			want: []string{"backend"},
		},
		{
			name: "multiple mentions",
			text: "@pm and @architect should sync",
			want: []string{"pm", "architect"},
		},
		{
			name: "no mentions",
			text: "nothing to see here",
			want: nil,
		},
		{
			name: "duplicates keep first-seen order",
			text: "@backend then @frontend then @backend again",
			want: []string{"backend", "frontend"},
		},
		{
			name: "emoji between at-sign and name",
			text: "over to @💻 backend now",
			want: []string{"backend"},
		},
		{
			name: "localized name",
			text: "请 @后端开发 实现接口",
			want: []string{"后端开发"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMentions(tt.text))
		})
	}
}

func TestExtractMentionsIdempotent(t *testing.T) {
	text := "@pm kick off, then @backend and @pm wrap up"
	first := ExtractMentions(text)
	second := ExtractMentions(text)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"pm", "backend"}, first)
}

func TestNewMessageExtractsMentions(t *testing.T) {
	msg := New("p1", "u1", "User", "hand off to @tester please")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Equal(t, []string{"tester"}, msg.Mentions)
	assert.False(t, msg.IsBroadcast())
	assert.True(t, msg.MentionsSubscriber("tester"))
	assert.False(t, msg.MentionsSubscriber("backend"))
}

func TestBroadcastMessage(t *testing.T) {
	msg := New("p1", "u1", "User", "hello everyone")
	assert.True(t, msg.IsBroadcast())
	assert.False(t, msg.MentionsSubscriber("backend"))
}
