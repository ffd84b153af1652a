package hook

// MaxSyscalls 是 i386 上插件表长度的上限（不含）
const MaxSyscalls = 358
