// Package notify delivers check results to people.
//
// Two collaborators are defined here:
//
//   - Chat is the primary interface. It sends text messages and files,
//     implemented by TelegramChat for the Telegram Bot HTTP API and by
//     WriterChat for terminals.
//   - Channel is a secondary, best-effort notification sink such as a
//     webhook. Failures are logged by Dispatch and never reach the check.
//
// Sends are paced with golang.org/x/time/rate so a long result split into
// many messages stays under the chat service's flood limits.
package notify
