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

package http

var (
	Failed                        = failed(500, "Request failed")
	RequestParameterParsingFailed = failed(5001, "Request parameter parsing failed")

	Unauthorized = failed(4401, "Unauthorized")
	InvalidToken = failed(4405, "Invalid token")
	TokenExpired = failed(4407, "Token is expired")

	BadRequest = failed(4000, "Bad request")
	NotFound   = failed(4004, "Not found")

	InternalError = failed(5000, "Internal error, please contact the administrator")

	EntitlementNotFound = failed(4601, "Entitlement not found")
	InvalidDuration     = failed(4602, "Invalid duration")
	ChannelNotManaged   = failed(4603, "Channel is not managed by this bot")
	UpstreamUnavailable = failed(5031, "Messaging platform unavailable")
	PersistenceFailed   = failed(5032, "Failed to persist record")
	ServiceUnavailable  = failed(5033, "Service is shutting down")
)

var (
	Success = success(200, "Request Success")
)

func failed(code int, msg string) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
	}
}

func success(code int, msg string) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
	}
}
