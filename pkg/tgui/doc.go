// Package tgui holds small Telegram UI helpers: inline keyboard
// building, callback data encoding, and a TTL token store for callback
// payloads larger than Telegram's 64-byte callback_data limit.
package tgui
