// Package win32 adapts the Win32 user32 API to window.Platform: EnumWindows
// for the seed scan, SetWinEventHook for location and name changes, and a
// GetMessage loop on the hooking thread as the event pump. Quit is delivered
// with PostThreadMessage(WM_QUIT) to that thread.
package win32
