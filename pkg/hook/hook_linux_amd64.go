package hook

// MaxSyscalls 是 x86_64 上插件表长度的上限（不含）
const MaxSyscalls = 316
