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

package middleware

import (
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/gofiber/fiber/v2"
)

const (
	DetailKey    = "detail"
	OperationKey = "operation"
)

// UnifiedResponseMiddleware wraps what handlers leave in the DetailKey local
// in the success envelope. Handlers that already wrote a body are untouched.
func UnifiedResponseMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			return nil
		}
		if detail := c.Locals(DetailKey); detail != nil {
			return http.WithRepJSON(c, detail)
		}
		if c.Locals(OperationKey) != nil {
			return http.WithRepJSON(c, nil)
		}
		return nil
	}
}
