package authapi

import (
	"context"
	"net"
)

// audit logs one dotted auth event. Secrets never go in attrs.
func (h *Handler) audit(ctx context.Context, event, accountID string, ip net.IP, attrs ...any) {
	if h == nil || h.log == nil {
		return
	}
	args := make([]any, 0, 4+len(attrs))
	if accountID != "" {
		args = append(args, "account_id", accountID)
	}
	args = append(args, "ip", ipKey(ip))
	args = append(args, attrs...)
	h.log.InfoContext(ctx, event, args...)
}
