/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ami

import (
	"sort"
	"strings"
)

// Action is one AMI request frame: an action name plus key/value headers.
type Action map[string]string

// NewAction builds an action frame for the given action name.
func NewAction(name string) Action {
	return Action{"Action": name}
}

// encode renders the action as a wire frame. The Action and ActionID headers
// lead, the rest follow in sorted order so frames are deterministic.
func (a Action) encode() string {
	var b strings.Builder

	writeHeader := func(key string) {
		if value, ok := a[key]; ok {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\r\n")
		}
	}

	writeHeader("Action")
	writeHeader("ActionID")

	keys := make([]string, 0, len(a))

	for key := range a {
		if key == "Action" || key == "ActionID" {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		writeHeader(key)
	}

	b.WriteString("\r\n")

	return b.String()
}

// Response is one AMI response frame. Console command output lands in Output,
// whether the PBX sent it as "Output:" headers or as a Response: Follows body.
type Response struct {
	Headers map[string]string
	Output  []string
}

// Success reports whether the PBX accepted the action.
func (r *Response) Success() bool {
	status := r.Headers["Response"]

	return strings.EqualFold(status, "Success") || strings.EqualFold(status, "Follows")
}

// Message returns the PBX-supplied diagnostic header, if any.
func (r *Response) Message() string {
	return r.Headers["Message"]
}

// OutputText returns the command output as one newline-joined string.
func (r *Response) OutputText() string {
	return strings.Join(r.Output, "\n")
}
